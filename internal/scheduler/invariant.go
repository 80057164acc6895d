//go:build !evfsdebug

package scheduler

import "log/slog"

func invariantViolated(msg string, args ...any) {
	slog.Error("Scheduler invariant violated: "+msg, args...)
}
