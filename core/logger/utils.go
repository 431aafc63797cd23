package logger

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// EventType names a kind of logged event.
type EventType string

const (
	EventSessionStart   EventType = "session_start"
	EventRunCommand     EventType = "run_command"
	EventUnknownCommand EventType = "unknown_command"
	EventCommandError   EventType = "command_error"
	EventInterrupt      EventType = "interrupt"
	EventPluginSpawn    EventType = "plugin_spawn"
	EventPluginExit     EventType = "plugin_exit"
	EventPluginError    EventType = "plugin_error"
)

// Fields carries an event's payload. Values must be representable in a
// google.protobuf.Value.
type Fields map[string]interface{}

// LogEntry is one decoded event.
type LogEntry struct {
	TimestampMicros int64
	SessionID       string
	Type            EventType
	Fields          Fields
}

// String returns the named field as text, or "" if absent.
func (le *LogEntry) String(field string) string {
	if v, ok := le.Fields[field]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func (le *LogEntry) toStruct() (*structpb.Struct, error) {
	raw := map[string]interface{}{
		"timestamp_micros": float64(le.TimestampMicros),
		"session_id":       le.SessionID,
		"type":             string(le.Type),
	}
	if len(le.Fields) > 0 {
		raw["fields"] = map[string]interface{}(le.Fields)
	}
	return structpb.NewStruct(raw)
}

func entryFromStruct(s *structpb.Struct) *LogEntry {
	m := s.AsMap()
	le := &LogEntry{Fields: Fields{}}
	if ts, ok := m["timestamp_micros"].(float64); ok {
		le.TimestampMicros = int64(ts)
	}
	le.SessionID, _ = m["session_id"].(string)
	if typ, ok := m["type"].(string); ok {
		le.Type = EventType(typ)
	}
	if fields, ok := m["fields"].(map[string]interface{}); ok {
		le.Fields = fields
	}
	return le
}

// LogRecorder is a callback that stores events in an external datastore.
type LogRecorder func(le *LogEntry) error

// Logger captures session event logs.
type Logger struct {
	Record LogRecorder
}

// NewJSONLinesLogRecorder creates a Logger that exports logs in newline
// delimited JSON object format.
func NewJSONLinesLogRecorder(w io.Writer) *Logger {
	var mu sync.Mutex
	return &Logger{
		Record: func(le *LogEntry) error {
			msg, err := le.toStruct()
			if err != nil {
				return err
			}
			entry, err := protojson.Marshal(msg)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			_, err = fmt.Fprintln(w, string(entry))
			return err
		},
	}
}

// Discard drops every entry.
func Discard() *Logger {
	return &Logger{Record: func(*LogEntry) error { return nil }}
}

// NewSession creates a logger with a fresh session ID.
func (l *Logger) NewSession() *SessionLogger {
	return &SessionLogger{Logger: l, sessionID: uuid.NewString(), now: time.Now}
}

// SessionLogger logs events with a shared session ID. A nil SessionLogger
// drops everything.
type SessionLogger struct {
	*Logger
	sessionID string
	now       func() time.Time
}

// SessionID returns the ID stamped on every entry.
func (l *SessionLogger) SessionID() string {
	if l == nil {
		return ""
	}
	return l.sessionID
}

// Record stores an event.
func (l *SessionLogger) Record(typ EventType, fields Fields) error {
	if l == nil || l.Logger == nil {
		return nil
	}
	return l.Logger.Record(&LogEntry{
		TimestampMicros: l.now().UnixMicro(),
		SessionID:       l.sessionID,
		Type:            typ,
		Fields:          fields,
	})
}
