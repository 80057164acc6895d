// Command evfs performs filesystem operations through the evented
// scheduler: every operation runs on a backend worker and completes on a
// single event loop.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
)

const (
	stackTraceBufMax = 1 << 24
)

//nolint:gochecknoglobals
var (
	ExitCode = 0
	Version  string
)

func setupSignalHandlers(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigChan
		cancel()
	}()

	dumpChan := make(chan os.Signal, 1)
	signal.Notify(dumpChan, syscall.SIGUSR1)

	go func() {
		for range dumpChan {
			buf := make([]byte, stackTraceBufMax)
			stacklen := runtime.Stack(buf, true)
			os.Stderr.Write(buf[:stacklen])
		}
	}()
}

func main() {
	defer func() {
		os.Exit(ExitCode)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	level := new(slog.LevelVar)
	logs := newLogRouter(level, newTintHandler(os.Stderr, level, false))
	slog.SetDefault(slog.New(logs))

	setupSignalHandlers(cancel)

	if err := newRootCmd(logs, level).ExecuteContext(ctx); err != nil {
		slog.Error("Command failed.", "err", err)
		ExitCode = 1
	}
}
