package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLinesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	session := NewJSONLinesLogRecorder(&buf).NewSession()
	session.now = func() time.Time { return time.UnixMicro(1234) }

	require.NoError(t, session.Record(EventRunCommand, Fields{"command": "ls", "decl_kind": "alias"}))
	require.NoError(t, session.Record(EventInterrupt, nil))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	var got []*LogEntry
	require.NoError(t, ReadJSONLinesLog(&buf, func(le *LogEntry) {
		got = append(got, le)
	}))

	require.Len(t, got, 2)
	assert.Equal(t, EventRunCommand, got[0].Type)
	assert.Equal(t, int64(1234), got[0].TimestampMicros)
	assert.Equal(t, session.SessionID(), got[0].SessionID)
	assert.Equal(t, "ls", got[0].String("command"))
	assert.Equal(t, "", got[1].String("command"))
}

func TestNilSessionLogger(t *testing.T) {
	var session *SessionLogger
	assert.NoError(t, session.Record(EventInterrupt, nil))
	assert.Equal(t, "", session.SessionID())
}

func TestReport(t *testing.T) {
	entries := []*LogEntry{
		{SessionID: "a", Type: EventRunCommand, Fields: Fields{"command": "ls", "decl_kind": "alias"}},
		{SessionID: "a", Type: EventRunCommand, Fields: Fields{"command": "ls", "decl_kind": "custom"}},
		{SessionID: "b", Type: EventUnknownCommand, Fields: Fields{"command": "nope"}},
		{SessionID: "b", Type: EventPluginError, Fields: Fields{"plugin": "example", "error": "crashed"}},
		{SessionID: "b", Type: EventInterrupt},
		{SessionID: "b", Type: "mystery"},
	}

	report := NewReport()
	for _, le := range entries {
		report.Update(le)
	}

	assert.Equal(t, 6, report.LogEntries)
	assert.Equal(t, 2, report.RunCommand.CommandNames.Get("ls"))
	assert.Equal(t, 1, report.UnknownCommand.CommandNames.Get("nope"))
	assert.Equal(t, 1, report.Plugin.Errors.Get("example", "crashed"))
	assert.Equal(t, 1, report.Interrupts)
	assert.Equal(t, 1, report.InvalidEntries.Get("mystery"))
	assert.Equal(t, 4, report.Sessions.Get("b"))
}
