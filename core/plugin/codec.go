package plugin

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
)

var errMalformed = errors.New("malformed message")

func malformed(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", errMalformed, fmt.Sprintf(format, a...))
}

func encodeSpan(sp span.Span) map[string]interface{} {
	return map[string]interface{}{"start": sp.Start, "end": sp.End}
}

func decodeSpan(raw interface{}) span.Span {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return span.Unknown
	}
	msg := Message(m)
	return span.New(int(msg.Int("start")), int(msg.Int("end")))
}

// EncodeValue converts a value to its wire form. Ints travel as decimal
// strings so they survive the trip through a double.
func EncodeValue(v value.Value) map[string]interface{} {
	if v == nil {
		v = value.NewNothing(span.Unknown)
	}
	out := map[string]interface{}{
		"type": v.Kind().String(),
		"span": encodeSpan(v.Span()),
	}

	switch v := v.(type) {
	case value.Bool:
		out["val"] = v.Val
	case value.Int:
		out["val"] = strconv.FormatInt(v.Val, 10)
	case value.Float:
		out["val"] = v.Val
	case value.String:
		out["val"] = v.Val
	case value.Binary:
		out["val"] = base64.StdEncoding.EncodeToString(v.Val)
	case value.Record:
		cols := make([]interface{}, len(v.Cols))
		vals := make([]interface{}, len(v.Vals))
		for i := range v.Cols {
			cols[i] = v.Cols[i]
			vals[i] = EncodeValue(v.Vals[i])
		}
		out["cols"] = cols
		out["vals"] = vals
	case value.List:
		out["vals"] = encodeValues(v.Vals)
	case value.Closure:
		out["block_id"] = v.BlockID
	case value.Error:
		se := shellerr.From(v.Err)
		out["msg"] = se.Msg
		out["label"] = se.Label
		out["help"] = se.Help
	}
	return out
}

func encodeValues(vals []value.Value) []interface{} {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = EncodeValue(v)
	}
	return out
}

// DecodeValue is the inverse of EncodeValue.
func DecodeValue(raw interface{}) (value.Value, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, malformed("value is %T, not an object", raw)
	}
	msg := Message(m)
	sp := decodeSpan(m["span"])
	kind, ok := value.ParseKind(msg.Str("type"))
	if !ok {
		return nil, malformed("unknown value type %q", msg.Str("type"))
	}

	switch kind {
	case value.KindNothing:
		return value.NewNothing(sp), nil
	case value.KindBool:
		return value.NewBool(msg.Bool("val"), sp), nil
	case value.KindInt:
		i, err := strconv.ParseInt(msg.Str("val"), 10, 64)
		if err != nil {
			return nil, malformed("int value: %v", err)
		}
		return value.NewInt(i, sp), nil
	case value.KindFloat:
		f, ok := m["val"].(float64)
		if !ok {
			return nil, malformed("float value is %T", m["val"])
		}
		return value.NewFloat(f, sp), nil
	case value.KindString:
		return value.NewString(msg.Str("val"), sp), nil
	case value.KindBinary:
		b, err := base64.StdEncoding.DecodeString(msg.Str("val"))
		if err != nil {
			return nil, malformed("binary value: %v", err)
		}
		return value.NewBinary(b, sp), nil
	case value.KindRecord:
		cols, vals := msg.List("cols"), msg.List("vals")
		if len(cols) != len(vals) {
			return nil, malformed("record has %d columns and %d values", len(cols), len(vals))
		}
		rec := value.NewRecord(sp)
		for i := range cols {
			col, ok := cols[i].(string)
			if !ok {
				return nil, malformed("record column is %T", cols[i])
			}
			v, err := DecodeValue(vals[i])
			if err != nil {
				return nil, err
			}
			rec.Insert(col, v)
		}
		return rec, nil
	case value.KindList:
		vals, err := decodeValues(msg.List("vals"))
		if err != nil {
			return nil, err
		}
		return value.NewList(vals, sp), nil
	case value.KindClosure:
		// Block ids only mean something inside the engine that made them.
		return nil, malformed("closures cannot cross the plugin boundary")
	case value.KindError:
		err := shellerr.New(shellerr.PluginReportedError, msg.Str("msg")).
			WithLabel(msg.Str("label"), sp).
			WithHelp(msg.Str("help"))
		return value.NewError(err, sp), nil
	}
	return nil, malformed("unhandled value type %s", kind)
}

func decodeValues(raw []interface{}) ([]value.Value, error) {
	out := make([]value.Value, 0, len(raw))
	for _, r := range raw {
		v, err := DecodeValue(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// chunkBytes turns a byte stream chunk back into bytes.
func chunkBytes(v value.Value) ([]byte, error) {
	switch v := v.(type) {
	case value.String:
		return []byte(v.Val), nil
	case value.Binary:
		return v.Val, nil
	}
	return nil, malformed("byte stream chunk is %s", v.Kind())
}

func chunkValue(b []byte, sp span.Span) value.Value {
	if utf8.Valid(b) {
		return value.NewString(string(b), sp)
	}
	return value.NewBinary(b, sp)
}

func encodePositional(p signature.Positional) map[string]interface{} {
	return map[string]interface{}{"name": p.Name, "shape": p.Shape.String(), "desc": p.Desc}
}

func decodePositional(raw interface{}) (signature.Positional, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return signature.Positional{}, malformed("parameter is %T", raw)
	}
	msg := Message(m)
	shape, ok := signature.ParseShape(msg.Str("shape"))
	if !ok {
		return signature.Positional{}, malformed("unknown shape %q", msg.Str("shape"))
	}
	return signature.Positional{Name: msg.Str("name"), Shape: shape, Desc: msg.Str("desc")}, nil
}

// EncodeSignature converts a signature to its wire form.
func EncodeSignature(sig *signature.Signature) map[string]interface{} {
	required := make([]interface{}, len(sig.Required))
	for i, p := range sig.Required {
		required[i] = encodePositional(p)
	}
	optional := make([]interface{}, len(sig.Optional))
	for i, p := range sig.Optional {
		optional[i] = encodePositional(p)
	}
	named := make([]interface{}, len(sig.Named))
	for i, f := range sig.Named {
		short := ""
		if f.Short != 0 {
			short = string(f.Short)
		}
		named[i] = map[string]interface{}{
			"long":     f.Long,
			"short":    short,
			"shape":    f.Shape.String(),
			"required": f.Required,
			"desc":     f.Desc,
		}
	}

	out := map[string]interface{}{
		"name":     sig.Name,
		"usage":    sig.Usage,
		"required": required,
		"optional": optional,
		"named":    named,
	}
	if sig.Rest != nil {
		out["rest"] = encodePositional(*sig.Rest)
	}
	return out
}

// DecodeSignature is the inverse of EncodeSignature.
func DecodeSignature(raw interface{}) (*signature.Signature, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, malformed("signature is %T", raw)
	}
	msg := Message(m)
	if msg.Str("name") == "" {
		return nil, malformed("signature without a name")
	}
	sig := signature.New(msg.Str("name")).Describe(msg.Str("usage"))

	for _, r := range msg.List("required") {
		p, err := decodePositional(r)
		if err != nil {
			return nil, err
		}
		sig.Required = append(sig.Required, p)
	}
	for _, r := range msg.List("optional") {
		p, err := decodePositional(r)
		if err != nil {
			return nil, err
		}
		sig.Optional = append(sig.Optional, p)
	}
	if r, ok := m["rest"]; ok && r != nil {
		p, err := decodePositional(r)
		if err != nil {
			return nil, err
		}
		sig.Rest = &p
	}
	for _, r := range msg.List("named") {
		fm, ok := r.(map[string]interface{})
		if !ok {
			return nil, malformed("flag is %T", r)
		}
		f := Message(fm)
		shape, ok := signature.ParseShape(f.Str("shape"))
		if !ok {
			return nil, malformed("unknown shape %q", f.Str("shape"))
		}
		var short rune
		if s := f.Str("short"); s != "" {
			short, _ = utf8.DecodeRuneInString(s)
		}
		sig.Named = append(sig.Named, signature.Flag{
			Long:     f.Str("long"),
			Short:    short,
			Shape:    shape,
			Required: f.Bool("required"),
			Desc:     f.Str("desc"),
		})
	}
	return sig, nil
}

// encodeCall writes the bound arguments of a call.
func encodeCall(m Message, name string, call *signature.EvaluatedCall) {
	named := make(map[string]interface{}, len(call.Named))
	keys := make([]string, 0, len(call.Named))
	for k := range call.Named {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		named[k] = EncodeValue(call.Named[k])
	}

	m["name"] = name
	m["head"] = encodeSpan(call.Head)
	m["positional"] = encodeValues(call.Positional)
	m["named"] = named
	m["rest"] = encodeValues(call.Rest)
}

func decodeCall(m Message) (*signature.EvaluatedCall, error) {
	call := &signature.EvaluatedCall{
		Head:  decodeSpan(m["head"]),
		Named: map[string]value.Value{},
	}
	var err error
	if call.Positional, err = decodeValues(m.List("positional")); err != nil {
		return nil, err
	}
	if call.Rest, err = decodeValues(m.List("rest")); err != nil {
		return nil, err
	}
	for k, raw := range m.Map("named") {
		v, err := DecodeValue(raw)
		if err != nil {
			return nil, err
		}
		call.Named[k] = v
	}
	return call, nil
}

func encodeMetadata(md *value.Metadata) map[string]interface{} {
	if md == nil {
		return nil
	}
	return map[string]interface{}{"content_type": md.ContentType, "source_file": md.SourceFile}
}

func decodeMetadata(raw map[string]interface{}) *value.Metadata {
	if raw == nil {
		return nil
	}
	m := Message(raw)
	return &value.Metadata{ContentType: m.Str("content_type"), SourceFile: m.Str("source_file")}
}

func encodeByteType(t value.ByteType) string {
	switch t {
	case value.ByteString:
		return "string"
	case value.ByteBinary:
		return "binary"
	}
	return "unknown"
}

func decodeByteType(s string) value.ByteType {
	switch s {
	case "string":
		return value.ByteString
	case "binary":
		return value.ByteBinary
	}
	return value.ByteUnknown
}

// errorMessage builds an error reply, anchoring unlabeled errors at head.
func errorMessage(id int64, err error, head span.Span) Message {
	se := shellerr.From(err)
	sp := se.Span
	if sp.IsUnknown() {
		sp = head
	}
	m := newMessage(MsgError, id)
	m["msg"] = se.Msg
	m["label"] = se.Label
	m["help"] = se.Help
	m["span"] = encodeSpan(sp)
	return m
}

// reportedError converts an error reply into a PluginReportedError.
func reportedError(m Message, head span.Span) *shellerr.ShellError {
	sp := decodeSpan(m["span"])
	if sp.IsUnknown() {
		sp = head
	}
	msg := m.Str("msg")
	if msg == "" {
		msg = "Plugin failed"
	}
	label := m.Str("label")
	if label == "" {
		label = "reported by plugin"
	}
	return shellerr.New(shellerr.PluginReportedError, msg).WithLabel(label, sp).WithHelp(m.Str("help"))
}
