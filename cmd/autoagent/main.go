// Command autoagent is the CLI for the engine: start/stop/status.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/ki-autoagent/engine/internal/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Start  StartCmd  `cmd:"" help:"Run the engine, binding a client channel."`
	Stop   StopCmd   `cmd:"" help:"Gracefully shut down a running engine."`
	Status StatusCmd `cmd:"" help:"Report liveness and session inventory."`

	Config   string `short:"c" help:"Path to the agent/MCP config YAML." type:"path" default:"autoagent.yaml"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile  string `help:"Log file path (empty = stderr)."`
}

func main() {
	_ = config.LoadDotEnv(".env")

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("autoagent"),
		kong.Description("AutoAgent engine: multi-agent software-engineering workflows."),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to an exit code: 1 for fatal init errors
// (anything before the engine starts serving), 2 for unrecoverable
// runtime errors raised after serving began.
func exitCodeFor(err error) int {
	if _, ok := err.(*runtimeError); ok {
		return 2
	}
	return 1
}

// runtimeError marks an error as having occurred after the engine reached
// its serving loop, distinguishing it from a startup/configuration failure.
type runtimeError struct{ cause error }

func (e *runtimeError) Error() string { return e.cause.Error() }
func (e *runtimeError) Unwrap() error { return e.cause }
