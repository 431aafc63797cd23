package plugin

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ProtocolName    = "pipeshell-plugin"
	ProtocolVersion = 1

	// StdioFlag is passed to a plugin executable to start serving on its
	// standard streams.
	StdioFlag = "--stdio"

	maxMessageSize = 64 << 20
)

// Message types.
const (
	MsgHello       = "hello"
	MsgCall        = "call"
	MsgInputChunk  = "input_chunk"
	MsgInputEnd    = "input_end"
	MsgCancel      = "cancel"
	MsgGoodbye     = "goodbye"
	MsgValue       = "value"
	MsgError       = "error"
	MsgStreamStart = "stream_start"
	MsgChunk       = "chunk"
	MsgStreamEnd   = "stream_end"
)

// Message is one frame on the wire. Every message has a "type" field; call
// scoped messages also carry an "id".
type Message map[string]interface{}

func newMessage(typ string, id int64) Message {
	m := Message{"type": typ}
	if id != 0 {
		m["id"] = id
	}
	return m
}

// Type returns the message type.
func (m Message) Type() string {
	return m.Str("type")
}

// ID returns the call id, or 0.
func (m Message) ID() int64 {
	return m.Int("id")
}

// Str returns a string field or "".
func (m Message) Str(key string) string {
	s, _ := m[key].(string)
	return s
}

// Int returns a numeric field truncated to an integer.
func (m Message) Int(key string) int64 {
	switch n := m[key].(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

// Bool returns a boolean field.
func (m Message) Bool(key string) bool {
	b, _ := m[key].(bool)
	return b
}

// Map returns a nested object field.
func (m Message) Map(key string) map[string]interface{} {
	o, _ := m[key].(map[string]interface{})
	return o
}

// List returns a nested list field.
func (m Message) List(key string) []interface{} {
	l, _ := m[key].([]interface{})
	return l
}

// Conn reads and writes length-delimited messages. Send is safe for
// concurrent use; Recv is not.
type Conn struct {
	r  *bufio.Reader
	w  io.Writer
	mu sync.Mutex
}

// NewConn creates a connection over a reader and writer pair.
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{r: bufio.NewReader(r), w: w}
}

// errEncode marks a message that could not be encoded. Nothing was written,
// so the connection is still usable.
var errEncode = errors.New("unencodable message")

// Send writes one message. Strings that aren't valid UTF-8 are sent with
// the bad bytes replaced by U+FFFD.
func (c *Conn) Send(m Message) error {
	s, err := structpb.NewStruct(m)
	if err != nil {
		s, err = structpb.NewStruct(toValidUTF8(map[string]interface{}(m)).(map[string]interface{}))
	}
	if err != nil {
		return fmt.Errorf("%w: %q message: %v", errEncode, m.Type(), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := protodelim.MarshalTo(c.w, s); err != nil {
		return fmt.Errorf("writing %q message: %w", m.Type(), err)
	}
	return nil
}

func toValidUTF8(v interface{}) interface{} {
	switch v := v.(type) {
	case string:
		return strings.ToValidUTF8(v, "\uFFFD")
	case Message:
		return toValidUTF8(map[string]interface{}(v))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[strings.ToValidUTF8(k, "\uFFFD")] = toValidUTF8(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = toValidUTF8(item)
		}
		return out
	}
	return v
}

// Recv reads one message. It returns io.EOF when the peer closed the stream
// cleanly between messages.
func (c *Conn) Recv() (Message, error) {
	var s structpb.Struct
	opts := protodelim.UnmarshalOptions{MaxSize: maxMessageSize}
	if err := opts.UnmarshalFrom(c.r, &s); err != nil {
		return nil, err
	}
	m := Message(s.AsMap())
	if m.Type() == "" {
		return nil, fmt.Errorf("message without a type")
	}
	return m, nil
}
