package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// FileChannel appends alerts as JSON lines to a file. It doubles as the
// always-on journal and as the "log" escalation channel for low severities.
type FileChannel struct {
	name string
	path string

	mu   sync.Mutex
	file *os.File
}

// NewFileChannel opens (or creates) the JSONL file at path. The channel
// registers under the given name.
func NewFileChannel(name, path string) (*FileChannel, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open alert log %s: %w", path, err)
	}
	return &FileChannel{name: name, path: path, file: f}, nil
}

// Name returns the channel name given at construction.
func (c *FileChannel) Name() string { return c.name }

// Send appends one alert record as a JSON line.
func (c *FileChannel) Send(_ context.Context, msg Message) error {
	record := struct {
		LoggedAt time.Time `json:"logged_at"`
		Message  Message   `json:"alert"`
	}{
		LoggedAt: time.Now().UTC(),
		Message:  msg,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal alert %s: %w", msg.Incident.ID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append alert %s: %w", msg.Incident.ID, err)
	}
	return nil
}

// Close closes the underlying file.
func (c *FileChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Close()
}
