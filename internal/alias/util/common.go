package util

import (
	"io"
	"log/slog"
)

// CloseQuietly closes c and logs, rather than returns, a failure. Used on
// cleanup paths where an earlier error is already being reported.
func CloseQuietly(c io.Closer, what string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		slog.Warn("close failed", "what", what, "err", err)
	}
}
