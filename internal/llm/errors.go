package llm

import (
	"errors"

	"github.com/ki-autoagent/engine/internal/httpclient"
)

// isRetryableError is a thin errors.As wrapper so each provider's
// classifyXError function reads as a flat switch on status code.
func isRetryableError(err error, target **httpclient.RetryableError) bool {
	return errors.As(err, target)
}
