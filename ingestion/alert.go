package ingestion

import (
	"context"
	"log/slog"
	"os/exec"
)

// Alerter broadcasts an operational message. Delivery is best effort and
// must not block the job for long.
type Alerter interface {
	Alert(ctx context.Context, message string)
}

// WallAlerter writes to every logged-in terminal with wall and to syslog
// with logger.
type WallAlerter struct {
	logger *slog.Logger
	run    func(ctx context.Context, name string, args ...string) error
}

// NewWallAlerter creates a WallAlerter.
func NewWallAlerter(logger *slog.Logger) *WallAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &WallAlerter{
		logger: logger,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

func (a *WallAlerter) Alert(ctx context.Context, message string) {
	if err := a.run(ctx, "wall", "[Kairix Cron Error] "+message); err != nil {
		a.logger.Warn("wall broadcast failed", "error", err)
	}
	if err := a.run(ctx, "logger", "-t", "kairix-cron", "ERROR: "+message); err != nil {
		a.logger.Warn("syslog write failed", "error", err)
	}
}

// LogAlerter reports alerts through a logger.
type LogAlerter struct {
	logger *slog.Logger
}

// NewLogAlerter creates a LogAlerter.
func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAlerter{logger: logger}
}

func (a *LogAlerter) Alert(ctx context.Context, message string) {
	a.logger.Error("ingestion alert", "message", message)
}
