package value

import (
	"errors"
	"io"
	"unicode/utf8"

	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/span"
)

// Producer yields the next item of a stream, or io.EOF when exhausted.
type Producer func() (Value, error)

// ListStream is a lazy, single-pass sequence of values. Items are produced
// only when the consumer pulls them.
type ListStream struct {
	sp      span.Span
	produce Producer
	signals *Signals
	onClose []func()

	claimed bool
	done    bool
	err     error
}

// NewListStream wraps a producer. signals may be nil.
func NewListStream(sp span.Span, signals *Signals, produce Producer) *ListStream {
	return &ListStream{sp: sp, produce: produce, signals: signals}
}

// FromValues streams the given values in order.
func FromValues(sp span.Span, signals *Signals, vals []Value) *ListStream {
	i := 0
	return NewListStream(sp, signals, func() (Value, error) {
		if i >= len(vals) {
			return nil, io.EOF
		}
		v := vals[i]
		i++
		return v, nil
	})
}

// OnClose registers fn to run once when the stream finishes for any reason.
func (s *ListStream) OnClose(fn func()) *ListStream {
	s.onClose = append(s.onClose, fn)
	return s
}

// Span returns the span of the expression that produced the stream.
func (s *ListStream) Span() span.Span {
	return s.sp
}

// Next pulls the next item. It returns false when the stream is exhausted,
// failed or was interrupted; check Err to tell them apart.
func (s *ListStream) Next() (Value, bool) {
	if s.done {
		return nil, false
	}
	if err := s.signals.Check(s.sp); err != nil {
		s.finish(err)
		return nil, false
	}

	v, err := s.produce()
	switch {
	case errors.Is(err, io.EOF):
		s.finish(nil)
		return nil, false
	case err != nil:
		s.finish(err)
		return nil, false
	}
	return v, true
}

// Err returns the error that ended the stream, nil after a clean end.
func (s *ListStream) Err() error {
	return s.err
}

// Close abandons the stream early.
func (s *ListStream) Close() {
	s.finish(nil)
}

// Collect drains the remaining items.
func (s *ListStream) Collect() ([]Value, error) {
	var out []Value
	for {
		v, ok := s.Next()
		if !ok {
			return out, s.Err()
		}
		out = append(out, v)
	}
}

// claim marks the stream as handed to a consumer. A second claim means the
// same stream was iterated twice.
func (s *ListStream) claim() error {
	if s.claimed {
		return shellerr.New(shellerr.StreamConsumed, "Stream already consumed").
			WithLabel("this stream was already read by another command", s.sp)
	}
	s.claimed = true
	return nil
}

func (s *ListStream) finish(err error) {
	if s.done {
		return
	}
	s.done = true
	s.err = err
	for _, fn := range s.onClose {
		fn()
	}
}

// ByteType hints how a ByteStream should be materialized.
type ByteType int

const (
	ByteUnknown ByteType = iota
	ByteString
	ByteBinary
)

// ChunkProducer yields the next chunk, or io.EOF when exhausted.
type ChunkProducer func() ([]byte, error)

// ByteStream is a lazy, single-pass sequence of byte chunks.
type ByteStream struct {
	sp      span.Span
	typ     ByteType
	produce ChunkProducer
	signals *Signals
	onClose []func()

	claimed bool
	done    bool
	err     error
}

// NewByteStream wraps a chunk producer.
func NewByteStream(sp span.Span, signals *Signals, typ ByteType, produce ChunkProducer) *ByteStream {
	return &ByteStream{sp: sp, typ: typ, produce: produce, signals: signals}
}

// ReaderStream streams r in chunks of up to 8KiB.
func ReaderStream(sp span.Span, signals *Signals, typ ByteType, r io.Reader) *ByteStream {
	return NewByteStream(sp, signals, typ, func() ([]byte, error) {
		buf := make([]byte, 8*1024)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				return buf[:n], nil
			}
			if err != nil {
				return nil, err
			}
		}
	})
}

func (s *ByteStream) OnClose(fn func()) *ByteStream {
	s.onClose = append(s.onClose, fn)
	return s
}

func (s *ByteStream) Span() span.Span { return s.sp }
func (s *ByteStream) Type() ByteType { return s.typ }
func (s *ByteStream) Err() error { return s.err }
func (s *ByteStream) Close() { s.finish(nil) }

// Next pulls the next chunk.
func (s *ByteStream) Next() ([]byte, bool) {
	if s.done {
		return nil, false
	}
	if err := s.signals.Check(s.sp); err != nil {
		s.finish(err)
		return nil, false
	}

	chunk, err := s.produce()
	switch {
	case errors.Is(err, io.EOF):
		s.finish(nil)
		return nil, false
	case err != nil:
		s.finish(err)
		return nil, false
	}
	return chunk, true
}

// Bytes drains the remaining chunks.
func (s *ByteStream) Bytes() ([]byte, error) {
	var out []byte
	for {
		chunk, ok := s.Next()
		if !ok {
			return out, s.Err()
		}
		out = append(out, chunk...)
	}
}

// IntoValue drains the stream into a String or Binary.
func (s *ByteStream) IntoValue() (Value, error) {
	buf, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	return s.chunkValue(buf), nil
}

func (s *ByteStream) chunkValue(buf []byte) Value {
	switch {
	case s.typ == ByteString, s.typ == ByteUnknown && utf8.Valid(buf):
		return NewString(string(buf), s.sp)
	default:
		return NewBinary(buf, s.sp)
	}
}

// Values exposes the chunks as a stream of String or Binary values.
func (s *ByteStream) Values() *ListStream {
	return NewListStream(s.sp, nil, func() (Value, error) {
		chunk, ok := s.Next()
		if !ok {
			if s.Err() != nil {
				return nil, s.Err()
			}
			return nil, io.EOF
		}
		return s.chunkValue(chunk), nil
	}).OnClose(s.Close)
}

func (s *ByteStream) claim() error {
	if s.claimed {
		return shellerr.New(shellerr.StreamConsumed, "Stream already consumed").
			WithLabel("this byte stream was already read by another command", s.sp)
	}
	s.claimed = true
	return nil
}

func (s *ByteStream) finish(err error) {
	if s.done {
		return
	}
	s.done = true
	s.err = err
	for _, fn := range s.onClose {
		fn()
	}
}
