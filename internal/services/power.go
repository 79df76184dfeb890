package services

import (
	"context"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// systemPower invokes the host's shutdown binary. Restart and shutdown are
// fire-and-forget: the command is started but not awaited, since the action
// may terminate this very process.
type systemPower struct {
	logger *logrus.Logger
}

// NewSystemPower returns the production PowerController.
func NewSystemPower(logger *logrus.Logger) PowerController {
	if logger == nil {
		logger = logrus.New()
	}
	return &systemPower{logger: logger}
}

func (p *systemPower) Restart(ctx context.Context) error {
	p.logger.Warn("Restarting host")
	return p.run(ctx, "shutdown", "-r", "now")
}

func (p *systemPower) Shutdown(ctx context.Context) error {
	p.logger.Warn("Shutting down host")
	return p.run(ctx, "shutdown", "-h", "now")
}

func (p *systemPower) run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap the child without blocking the execution slot.
	go func() { _ = cmd.Wait() }()
	return nil
}
