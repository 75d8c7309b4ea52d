package relaylog

import (
	"os"
	"strings"
	"sync"
	"time"
)

/*
RELAY LOG DESIGN

append only text file.
 One line per payload: what the browser sent, what the upstream answered
 Never truncated, never rewritten
 Human readable with tail/grep

fail open.
 A broken log must never block or fail a relay
 Write errors and panics are swallowed here

line format.
 <RFC3339Nano UTC> <request id> <label> <payload>
 Newlines inside payloads are escaped so an entry is always one line
*/

type Label string

const (
	LabelReceived Label = "Received JSON:"
	LabelUpstream Label = "Upstream Response:"
)

var labels = []Label{LabelReceived, LabelUpstream}

const noRequestID = "-"

type Entry struct {
	Timestamp time.Time
	RequestID string
	Label     Label
	Payload   string
}

type Logger struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// NewLogger opens (or creates) the relay log in append mode.
func NewLogger(path string) (*Logger, error) {
	f, err := os.OpenFile(
		path,
		os.O_CREATE|os.O_APPEND|os.O_WRONLY,
		0644,
	)
	if err != nil {
		return nil, err
	}

	return &Logger{
		file: f,
		now:  time.Now,
	}, nil
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	return l.file.Close()
}

// Received records the inbound payload of a relay.
func (l *Logger) Received(requestID string, payload []byte) {
	l.Log(requestID, LabelReceived, string(payload))
}

// Upstream records the upstream answer of a relay.
func (l *Logger) Upstream(requestID string, payload []byte) {
	l.Log(requestID, LabelUpstream, string(payload))
}

func (l *Logger) Log(requestID string, label Label, payload string) {
	// Fail open, never panic outward
	defer func() {
		_ = recover()
	}()

	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Timestamp: l.now().UTC(),
		RequestID: requestID,
		Label:     label,
		Payload:   payload,
	}

	_, _ = l.file.WriteString(format(entry))
}

/*
encoding
*/

var payloadEscaper = strings.NewReplacer("\\", `\\`, "\n", `\n`, "\r", `\r`)
var payloadUnescaper = strings.NewReplacer(`\\`, "\\", `\n`, "\n", `\r`, "\r")

func format(e Entry) string {
	id := strings.TrimSpace(e.RequestID)
	if id == "" || strings.ContainsAny(id, " \t\r\n") {
		id = noRequestID
	}

	var b strings.Builder
	b.WriteString(e.Timestamp.Format(time.RFC3339Nano))
	b.WriteByte(' ')
	b.WriteString(id)
	b.WriteByte(' ')
	b.WriteString(string(e.Label))
	b.WriteByte(' ')
	b.WriteString(payloadEscaper.Replace(e.Payload))
	b.WriteByte('\n')
	return b.String()
}

func parse(line string) (Entry, bool) {
	ts, rest, ok := strings.Cut(line, " ")
	if !ok {
		return Entry{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Entry{}, false
	}

	id, rest, ok := strings.Cut(rest, " ")
	if !ok {
		return Entry{}, false
	}
	if id == noRequestID {
		id = ""
	}

	for _, label := range labels {
		prefix := string(label) + " "
		if strings.HasPrefix(rest, prefix) {
			return Entry{
				Timestamp: t,
				RequestID: id,
				Label:     label,
				Payload:   payloadUnescaper.Replace(strings.TrimPrefix(rest, prefix)),
			}, true
		}
	}
	return Entry{}, false
}
