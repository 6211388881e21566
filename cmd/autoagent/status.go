package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/ki-autoagent/engine/internal/checkpoint"
)

const pidFileName = "engine.pid"

func pidFilePath(workspace string) string {
	return filepath.Join(workspace, ".ki_autoagent_ws", pidFileName)
}

func writePIDFile(workspace string) error {
	path := pidFilePath(workspace)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func removePIDFile(workspace string) {
	_ = os.Remove(pidFilePath(workspace))
}

func readPIDFile(workspace string) (int, error) {
	data, err := os.ReadFile(pidFilePath(workspace))
	if err != nil {
		return 0, fmt.Errorf("reading pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing pid file: %w", err)
	}
	return pid, nil
}

// StopCmd gracefully shuts down a running engine by
// sending SIGTERM to the pid recorded by the corresponding `start` at
// workspace_path/.ki_autoagent_ws/engine.pid.
type StopCmd struct {
	Workspace string `short:"w" help:"Workspace directory the running engine operates on." type:"path" required:""`
}

func (c *StopCmd) Run(cli *CLI) error {
	pid, err := readPIDFile(c.Workspace)
	if err != nil {
		return err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signaling process %d: %w", pid, err)
	}
	fmt.Printf("sent SIGTERM to autoagent engine (pid %d)\n", pid)
	return nil
}

// sessionStatus is the per-session status payload: liveness plus enough of
// each session's checkpoint to tell what it's doing.
type sessionStatus struct {
	SessionID           string `json:"session_id"`
	LastAgent           string `json:"last_agent"`
	SupervisorIteration int    `json:"supervisor_iteration"`
	HITLPending         bool   `json:"hitl_pending"`
}

// StatusCmd reports liveness and session inventory.
type StatusCmd struct {
	Workspace string `short:"w" help:"Workspace directory to inspect." type:"path" required:""`
}

func (c *StatusCmd) Run(cli *CLI) error {
	running := false
	if pid, err := readPIDFile(c.Workspace); err == nil {
		if proc, err := os.FindProcess(pid); err == nil {
			if proc.Signal(syscall.Signal(0)) == nil {
				running = true
			}
		}
	}

	store, err := checkpoint.Open(c.Workspace)
	if err != nil {
		return fmt.Errorf("opening checkpoint store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	ids, err := store.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	sessions := make([]sessionStatus, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := store.Load(ctx, id)
		if err != nil || !ok {
			continue
		}
		sessions = append(sessions, sessionStatus{
			SessionID:           rec.SessionID,
			LastAgent:           rec.State.LastAgent,
			SupervisorIteration: rec.State.SupervisorIteration,
			HITLPending:         rec.State.HITLPending,
		})
	}

	out := struct {
		Running  bool            `json:"running"`
		Sessions []sessionStatus `json:"sessions"`
	}{Running: running, Sessions: sessions}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
