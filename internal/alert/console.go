package alert

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/railwatch-data/railwatch/internal/severity"
)

// ANSI color codes for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// ConsoleChannel writes colored alerts to a terminal. It registers under the
// name "local".
type ConsoleChannel struct {
	out io.Writer
	mu  sync.Mutex
}

// NewConsoleChannel creates a console channel writing to stdout.
func NewConsoleChannel() *ConsoleChannel {
	return &ConsoleChannel{out: os.Stdout}
}

// Name returns "local".
func (c *ConsoleChannel) Name() string { return "local" }

// Send prints the alert with a severity-matched color.
func (c *ConsoleChannel) Send(_ context.Context, msg Message) error {
	color := colorGreen
	switch msg.Incident.Severity {
	case severity.SeverityCritical:
		color = colorRed
	case severity.SeverityHigh:
		color = colorYellow
	case severity.SeverityMedium:
		color = colorCyan
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "%s%s%s\n", color, msg.Text, colorReset)
	return err
}
