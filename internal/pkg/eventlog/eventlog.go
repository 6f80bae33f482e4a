/*
eventlog.go Operator facing event log. Entries are immutable once appended and
the log is only ever cleared as a whole.
*/

package eventlog

import (
	"fmt"
	"strings"
	"time"
)

// Severity classifies an entry.
type Severity int

// Severities.
const (
	Info Severity = iota
	Success
	Warning
	Error
)

var severityNames = map[Severity]string{
	Info:    "INFO",
	Success: "SUCCESS",
	Warning: "WARNING",
	Error:   "ERROR",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	name, ok := severityNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown severity %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a severity name, case insensitive.
func (s *Severity) UnmarshalText(b []byte) error {
	name := strings.ToUpper(string(b))
	for sev, n := range severityNames {
		if n == name {
			*s = sev
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", string(b))
}

// Entry is a single log line.
type Entry struct {
	ID        string    `json:"ID"`
	Timestamp time.Time `json:"Timestamp"`
	Message   string    `json:"Message"`
	Severity  Severity  `json:"Severity"`
}

// String formats the entry the way the advisor and console show it.
func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
}

// Book is an append-only entry sequence. It is not safe for concurrent use;
// the engine owns it.
type Book struct {
	entries []Entry
	nextID  func() string
	now     func() time.Time
}

// NewBook returns an empty Book that stamps entries with nextID and now.
func NewBook(nextID func() string, now func() time.Time) *Book {
	return &Book{
		entries: make([]Entry, 0),
		nextID:  nextID,
		now:     now,
	}
}

// Append adds an entry and returns it.
func (b *Book) Append(sev Severity, message string) Entry {
	e := Entry{
		ID:        b.nextID(),
		Timestamp: b.now(),
		Message:   message,
		Severity:  sev,
	}
	b.entries = append(b.entries, e)
	return e
}

// Clear drops every entry.
func (b *Book) Clear() {
	b.entries = make([]Entry, 0)
}

// Len returns the number of entries.
func (b *Book) Len() int {
	return len(b.entries)
}

// Entries returns a copy of the log, oldest first.
func (b *Book) Entries() []Entry {
	return append(make([]Entry, 0, len(b.entries)), b.entries...)
}

// Last returns up to n of the newest entries, oldest first.
func Last(entries []Entry, n int) []Entry {
	if n < 0 {
		n = 0
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return append(make([]Entry, 0, len(entries)), entries...)
}
