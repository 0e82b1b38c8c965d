package incident

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DayLog appends incidents to per-day JSONL files alongside the database, so
// records survive even if the store is unavailable.
type DayLog struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

// NewDayLog creates a day logger writing files named incidents_YYYYMMDD.jsonl
// under dir.
func NewDayLog(dir string) (*DayLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create incident log dir: %w", err)
	}
	return &DayLog{dir: dir, now: time.Now}, nil
}

// Append writes one incident as a JSON line to the current day's file,
// rotating at midnight.
func (l *DayLog) Append(inc Incident) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := l.now().Format("20060102")
	if l.file == nil || day != l.day {
		if l.file != nil {
			l.file.Close()
		}
		path := filepath.Join(l.dir, "incidents_"+day+".jsonl")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open incident log %s: %w", path, err)
		}
		l.file = f
		l.day = day
	}

	data, err := json.Marshal(inc)
	if err != nil {
		return fmt.Errorf("marshal incident %s: %w", inc.ID, err)
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append incident %s: %w", inc.ID, err)
	}
	return nil
}

// Close closes the current day file.
func (l *DayLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
