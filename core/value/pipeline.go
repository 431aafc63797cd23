package value

import (
	"github.com/josephlewis42/pipeshell/core/span"
)

// Content types understood by the renderer and the builtins.
const (
	ContentTypeScript = "application/x-nuscript"
	ContentTypeText   = "text/plain"
)

// Metadata rides alongside a PipelineData. Pass-through commands forward it;
// transforming commands drop it unless they declare otherwise.
type Metadata struct {
	ContentType string `json:"content_type,omitempty"`
	SourceFile  string `json:"source_file,omitempty"`
}

// DataKind tags the PipelineData variant.
type DataKind int

const (
	DataEmpty DataKind = iota
	DataValue
	DataListStream
	DataByteStream
)

func (k DataKind) String() string {
	switch k {
	case DataValue:
		return "value"
	case DataListStream:
		return "list stream"
	case DataByteStream:
		return "byte stream"
	default:
		return "empty"
	}
}

// PipelineData is what flows between pipeline stages. It is owned by one
// stage at a time; streams inside it can be read once.
type PipelineData struct {
	kind  DataKind
	value Value
	list  *ListStream
	bytes *ByteStream
	meta  *Metadata
}

// Empty is the input of the first stage and the result of statements that
// produce nothing.
func Empty() PipelineData {
	return PipelineData{}
}

func FromValue(v Value) PipelineData {
	return PipelineData{kind: DataValue, value: v}
}

func FromListStream(s *ListStream) PipelineData {
	return PipelineData{kind: DataListStream, list: s}
}

func FromByteStream(s *ByteStream) PipelineData {
	return PipelineData{kind: DataByteStream, bytes: s}
}

func (p PipelineData) Kind() DataKind { return p.kind }
func (p PipelineData) IsEmpty() bool { return p.kind == DataEmpty }
func (p PipelineData) Metadata() *Metadata { return p.meta }
func (p PipelineData) ByteStream() *ByteStream { return p.bytes }

// Value returns the single value held, if that is the variant.
func (p PipelineData) Value() (Value, bool) {
	return p.value, p.kind == DataValue
}

// WithMetadata returns a copy of p carrying md. Passing nil drops metadata.
func (p PipelineData) WithMetadata(md *Metadata) PipelineData {
	p.meta = md
	return p
}

// IntoValue materializes p. Streams are drained, so an interrupt while
// draining surfaces as an error.
func (p PipelineData) IntoValue(head span.Span) (Value, error) {
	switch p.kind {
	case DataValue:
		return p.value, nil
	case DataListStream:
		if err := p.list.claim(); err != nil {
			return nil, err
		}
		vals, err := p.list.Collect()
		if err != nil {
			return nil, err
		}
		return NewList(vals, p.list.Span().Merge(head)), nil
	case DataByteStream:
		if err := p.bytes.claim(); err != nil {
			return nil, err
		}
		return p.bytes.IntoValue()
	default:
		return NewNothing(head), nil
	}
}

// Iter claims p for item-by-item consumption. A List value yields its
// elements, any other single value yields itself, Empty yields nothing and a
// ByteStream yields its chunks.
func (p PipelineData) Iter(head span.Span, signals *Signals) (*ListStream, error) {
	switch p.kind {
	case DataValue:
		if l, ok := p.value.(List); ok {
			return FromValues(l.Span(), signals, l.Vals), nil
		}
		return FromValues(p.value.Span(), signals, []Value{p.value}), nil
	case DataListStream:
		if err := p.list.claim(); err != nil {
			return nil, err
		}
		return p.list, nil
	case DataByteStream:
		if err := p.bytes.claim(); err != nil {
			return nil, err
		}
		return p.bytes.Values(), nil
	default:
		return FromValues(head, signals, nil), nil
	}
}

// Drain consumes and discards p, returning any error the stream ended with
// or the error carried by a single Error value.
func (p PipelineData) Drain() error {
	switch p.kind {
	case DataValue:
		if e, ok := p.value.(Error); ok {
			return e.Err
		}
	case DataListStream:
		if err := p.list.claim(); err != nil {
			return err
		}
		for {
			if _, ok := p.list.Next(); !ok {
				return p.list.Err()
			}
		}
	case DataByteStream:
		if err := p.bytes.claim(); err != nil {
			return err
		}
		_, err := p.bytes.Bytes()
		return err
	}
	return nil
}

// Close releases any stream resources without reading further.
func (p PipelineData) Close() {
	switch p.kind {
	case DataListStream:
		p.list.Close()
	case DataByteStream:
		p.bytes.Close()
	}
}
