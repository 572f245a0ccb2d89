// Package audit appends one JSON object per line to the sanctuary log and
// reads them back for display.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Event types
const (
	TypeInit     = "init"
	TypeSnapshot = "snapshot"
	TypeCheckout = "checkout"
	TypeBrowse   = "browse"
	TypeLab      = "lab"
	TypeCompare  = "compare"
	TypeCleanup  = "cleanup"
	TypeUnlock   = "unlock"
)

// Event results
const (
	ResultSuccess  = "success"
	ResultNoChange = "nochange"
	ResultConflict = "conflict"
	ResultError    = "error"
)

// Event is a single line of the audit log
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Result    string         `json:"result"`
	Branch    string         `json:"branch,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Log is an append-only JSONL file
type Log struct {
	path string
	now  func() time.Time
}

// NewLog returns a Log writing to path
func NewLog(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// Path returns the log file location
func (l *Log) Path() string { return l.path }

// Append writes ev, stamping it when Timestamp is zero
func (l *Log) Append(ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now()
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// Tail returns the last n events, oldest first. n <= 0 returns everything.
// Lines that fail to parse are skipped.
func (l *Log) Tail(n int) ([]Event, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
		if n > 0 && len(events) > n {
			events = events[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return events, nil
}
