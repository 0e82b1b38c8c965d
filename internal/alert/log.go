package alert

import (
	"context"

	"github.com/railwatch-data/railwatch/internal/monitoring"
)

// LogChannel routes low-severity advisories to the package logger instead of
// an operator-facing surface. It registers as the "log" channel.
type LogChannel struct{}

// NewLogChannel creates a log channel.
func NewLogChannel() *LogChannel { return &LogChannel{} }

// Name returns "log".
func (c *LogChannel) Name() string { return "log" }

// Send logs a one-line summary of the alert.
func (c *LogChannel) Send(_ context.Context, msg Message) error {
	monitoring.Logf("alert [%s] %s: %s", msg.Incident.Severity, msg.Incident.ID, msg.Incident.Explanation)
	return nil
}
