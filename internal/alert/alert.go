// Package alert delivers incident notifications across escalating channels.
package alert

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/railwatch-data/railwatch/internal/incident"
	"github.com/railwatch-data/railwatch/internal/monitoring"
	"github.com/railwatch-data/railwatch/internal/severity"
)

// Message is one formatted alert ready for delivery.
type Message struct {
	Incident incident.Incident `json:"incident"`
	Text     string            `json:"text"`
}

// Channel delivers alert messages to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// DefaultEscalation maps each severity tier to the channels it should reach.
// Higher tiers fan out further.
func DefaultEscalation() map[severity.Severity][]string {
	return map[severity.Severity][]string{
		severity.SeverityCritical: {"local", "websocket", "redis"},
		severity.SeverityHigh:     {"local", "websocket"},
		severity.SeverityMedium:   {"local"},
		severity.SeverityLow:      {"log"},
	}
}

// DeliveryResult reports the outcome of dispatching one alert.
type DeliveryResult struct {
	Delivered  bool
	PerChannel map[string]error
}

// Statistics counts dispatched alerts.
type Statistics struct {
	Total      int                       `json:"total"`
	BySeverity map[severity.Severity]int `json:"by_severity"`
	Failures   map[string]int            `json:"failures_by_channel"`
}

// Manager routes incidents to channels according to the escalation table.
// Channel failures are isolated: one failing destination never blocks the
// others, and every alert is appended to the JSONL log regardless.
type Manager struct {
	channels   map[string]Channel
	escalation map[severity.Severity][]string
	journal    *FileChannel

	mu    sync.Mutex
	stats Statistics
}

// NewManager creates a manager with the given escalation table. The journal,
// if non-nil, receives every alert in addition to the escalated channels.
func NewManager(escalation map[severity.Severity][]string, journal *FileChannel) *Manager {
	return &Manager{
		channels:   make(map[string]Channel),
		escalation: escalation,
		journal:    journal,
		stats: Statistics{
			BySeverity: make(map[severity.Severity]int),
			Failures:   make(map[string]int),
		},
	}
}

// Register adds a delivery channel under its own name.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// Dispatch formats the incident and sends it to every channel the severity
// escalates to. Unregistered channel names are skipped silently so partial
// deployments work.
func (m *Manager) Dispatch(ctx context.Context, inc incident.Incident) DeliveryResult {
	msg := Message{Incident: inc, Text: Format(inc)}

	m.mu.Lock()
	names := m.escalation[inc.Severity]
	targets := make([]Channel, 0, len(names))
	for _, name := range names {
		if ch, ok := m.channels[name]; ok {
			targets = append(targets, ch)
		}
	}
	journal := m.journal
	m.mu.Unlock()

	result := DeliveryResult{PerChannel: make(map[string]error)}
	for _, ch := range targets {
		err := ch.Send(ctx, msg)
		result.PerChannel[ch.Name()] = err
		if err != nil {
			monitoring.Logf("alert: channel %s failed for incident %s: %v", ch.Name(), inc.ID, err)
		} else {
			result.Delivered = true
		}
	}

	if journal != nil {
		if err := journal.Send(ctx, msg); err != nil {
			monitoring.Logf("alert: journal write failed for incident %s: %v", inc.ID, err)
		}
	}

	m.mu.Lock()
	m.stats.Total++
	m.stats.BySeverity[inc.Severity]++
	for name, err := range result.PerChannel {
		if err != nil {
			m.stats.Failures[name]++
		}
	}
	m.mu.Unlock()

	return result
}

// Stats returns a copy of the dispatch counters.
func (m *Manager) Stats() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Statistics{
		Total:      m.stats.Total,
		BySeverity: make(map[severity.Severity]int, len(m.stats.BySeverity)),
		Failures:   make(map[string]int, len(m.stats.Failures)),
	}
	for k, v := range m.stats.BySeverity {
		out.BySeverity[k] = v
	}
	for k, v := range m.stats.Failures {
		out.Failures[k] = v
	}
	return out
}

// Format renders an incident as the plain-text alert body.
func Format(inc incident.Incident) string {
	var b strings.Builder
	banner := strings.Repeat("=", 50)

	fmt.Fprintln(&b, banner)
	fmt.Fprintf(&b, "RAILWATCH ALERT - %s\n", strings.ToUpper(string(inc.Severity)))
	fmt.Fprintln(&b, banner)
	fmt.Fprintln(&b, inc.Explanation)
	fmt.Fprintf(&b, "Obstacle: %s (confidence %.2f)\n", inc.Obstacle.Type, inc.Obstacle.Confidence)
	fmt.Fprintf(&b, "Zone: %s\n", inc.Location.Zone)
	if inc.Risk.DistanceM != nil {
		fmt.Fprintf(&b, "Distance: %.1f m\n", *inc.Risk.DistanceM)
	}
	if inc.Risk.TTCSeconds != nil && !math.IsInf(*inc.Risk.TTCSeconds, 0) {
		fmt.Fprintf(&b, "Time to collision: %.1f s\n", *inc.Risk.TTCSeconds)
	}
	fmt.Fprintf(&b, "Action: %s\n", inc.RecommendedAction)
	fmt.Fprintf(&b, "Time: %s\n", inc.Timestamp.Format(time.RFC3339))
	fmt.Fprintln(&b, banner)

	return b.String()
}
