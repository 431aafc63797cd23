package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
	getopt "github.com/pborman/getopt/v2"
	"golang.org/x/sync/errgroup"
)

// Command is a command provided by a plugin executable.
type Command interface {
	Signature() *signature.Signature
	// Run executes one call. ctx is cancelled when the host asks the call
	// to stop; streaming replies are ended at the next item regardless.
	Run(ctx context.Context, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error)
}

// CommandFunc is the body of a plugin command.
type CommandFunc func(ctx context.Context, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error)

type funcCommand struct {
	sig *signature.Signature
	fn  CommandFunc
}

func (c *funcCommand) Signature() *signature.Signature { return c.sig }

func (c *funcCommand) Run(ctx context.Context, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	return c.fn(ctx, call, input)
}

// NewCommand adapts a function into a Command.
func NewCommand(sig *signature.Signature, fn CommandFunc) Command {
	return &funcCommand{sig: sig, fn: fn}
}

var _ Command = (*funcCommand)(nil)

// LabeledError builds the error a plugin command returns to have the
// host underline part of the call.
func LabeledError(msg, label string, sp span.Span) error {
	return shellerr.New(shellerr.PluginReportedError, msg).WithLabel(label, sp)
}

// Main is the entry point of a plugin executable. With --stdio it serves
// the host on the standard streams; otherwise it describes its commands.
func Main(cmds ...Command) {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr, cmds...))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer, cmds ...Command) int {
	opts := getopt.New()
	stdio := opts.BoolLong("stdio", 0, "serve the plugin protocol on stdin and stdout")
	help := opts.BoolLong("help", 'h', "show this help and exit")
	opts.SetProgram(filepath.Base(args[0]))
	opts.SetParameters("")

	if err := opts.Getopt(args, nil); err != nil {
		fmt.Fprintf(stderr, "error: %s\n\n", err)
		opts.PrintUsage(stderr)
		return 1
	}

	if *help || !*stdio {
		fmt.Fprintf(stdout, "%s is a pipeshell plugin; load it with `plugin use`.\n\n", opts.Program())
		fmt.Fprintln(stdout, "Commands:")
		for _, c := range cmds {
			fmt.Fprintf(stdout, "  %s\n", c.Signature())
		}
		fmt.Fprintln(stdout)
		opts.PrintOptions(stdout)
		return 0
	}

	// Interrupts reach the plugin through the protocol; the terminal's
	// SIGINT goes to the whole process group.
	signal.Ignore(os.Interrupt)

	if err := Serve(context.Background(), stdin, stdout, cmds...); err != nil {
		fmt.Fprintf(stderr, "error: %s\n", err)
		return 1
	}
	return 0
}

// Serve speaks the plugin protocol over r and w until the host says goodbye
// or closes the stream.
func Serve(ctx context.Context, r io.Reader, w io.Writer, cmds ...Command) error {
	s := &server{
		conn:     NewConn(r, w),
		commands: make(map[string]Command),
		calls:    make(map[int64]*serverCall),
	}
	for _, c := range cmds {
		sig := c.Signature()
		s.commands[sig.Name] = c
		s.sigs = append(s.sigs, sig)
	}

	if err := s.handshake(); err != nil {
		return err
	}

	queue := make(chan *serverCall, 1)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		return s.readLoop(ctx, queue)
	})
	g.Go(func() error {
		for c := range queue {
			if err := s.run(c); err != nil {
				return err
			}
		}
		return nil
	})
	return g.Wait()
}

type server struct {
	conn     *Conn
	commands map[string]Command
	sigs     []*signature.Signature

	mu    sync.Mutex
	calls map[int64]*serverCall
}

func (s *server) handshake() error {
	m, err := s.conn.Recv()
	if err != nil {
		return fmt.Errorf("waiting for hello: %w", err)
	}
	if m.Type() != MsgHello {
		return fmt.Errorf("expected %q, got %q", MsgHello, m.Type())
	}
	if m.Str("protocol") != ProtocolName || m.Int("version") != ProtocolVersion {
		return fmt.Errorf("host speaks %s v%d, want %s v%d", m.Str("protocol"), m.Int("version"), ProtocolName, ProtocolVersion)
	}

	sigs := make([]interface{}, len(s.sigs))
	for i, sig := range s.sigs {
		sigs[i] = EncodeSignature(sig)
	}
	reply := newMessage(MsgHello, 0)
	reply["protocol"] = ProtocolName
	reply["version"] = ProtocolVersion
	reply["signatures"] = sigs
	return s.conn.Send(reply)
}

func (s *server) readLoop(ctx context.Context, queue chan<- *serverCall) error {
	defer s.cancelAll()
	for {
		m, err := s.conn.Recv()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("reading from host: %w", err)
		}

		switch m.Type() {
		case MsgCall:
			c := s.begin(ctx, m)
			select {
			case queue <- c:
			case <-ctx.Done():
				return ctx.Err()
			}
		case MsgInputChunk, MsgInputEnd:
			if c := s.lookup(m.ID()); c != nil {
				c.input.push(m)
			}
		case MsgCancel:
			if c := s.lookup(m.ID()); c != nil {
				c.cancel()
			}
		case MsgGoodbye:
			return nil
		default:
			return fmt.Errorf("unexpected %q message from host", m.Type())
		}
	}
}

func (s *server) begin(ctx context.Context, m Message) *serverCall {
	ctx, cancel := context.WithCancel(ctx)
	c := &serverCall{id: m.ID(), msg: m, ctx: ctx, cancel: cancel, input: newMailbox()}
	s.mu.Lock()
	s.calls[c.id] = c
	s.mu.Unlock()
	return c
}

func (s *server) lookup(id int64) *serverCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func (s *server) forget(c *serverCall) {
	c.cancel()
	s.mu.Lock()
	delete(s.calls, c.id)
	s.mu.Unlock()
}

func (s *server) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		c.cancel()
		c.input.close()
	}
}

// run executes one call and writes its reply. Only transport failures are
// returned; command failures are sent to the host.
func (s *server) run(c *serverCall) error {
	defer s.forget(c)

	name := c.msg.Str("name")
	head := decodeSpan(c.msg["head"])
	cmd, ok := s.commands[name]
	if !ok {
		err := shellerr.Newf(shellerr.DeclNotFound, "Plugin has no command `%s`", name).
			WithLabel("unknown plugin command", head)
		return s.conn.Send(errorMessage(c.id, err, head))
	}

	call, err := decodeCall(c.msg)
	if err != nil {
		return s.conn.Send(errorMessage(c.id, err, head))
	}
	input, err := c.inputData(head)
	if err != nil {
		return s.conn.Send(errorMessage(c.id, err, head))
	}

	out, err := cmd.Run(c.ctx, call, input)
	if err != nil {
		input.Close()
		return s.conn.Send(errorMessage(c.id, err, head))
	}
	return s.reply(c, head, out)
}

func (s *server) reply(c *serverCall, head span.Span, out value.PipelineData) error {
	switch out.Kind() {
	case value.DataEmpty, value.DataValue:
		v, ok := out.Value()
		if !ok {
			v = value.NewNothing(head)
		}
		m := newMessage(MsgValue, c.id)
		m["value"] = EncodeValue(v)
		return s.conn.Send(m)
	}

	start := newMessage(MsgStreamStart, c.id)
	start["kind"] = "list"
	if out.Kind() == value.DataByteStream {
		start["kind"] = "bytes"
		start["byte_type"] = encodeByteType(out.ByteStream().Type())
	}
	if md := out.Metadata(); md != nil {
		start["metadata"] = encodeMetadata(md)
	}
	if err := s.conn.Send(start); err != nil {
		return err
	}

	items, err := out.Iter(head, nil)
	if err != nil {
		return s.conn.Send(errorMessage(c.id, err, head))
	}
	defer items.Close()

	for c.ctx.Err() == nil {
		v, ok := items.Next()
		if !ok {
			if err := items.Err(); err != nil && c.ctx.Err() == nil {
				return s.conn.Send(errorMessage(c.id, err, head))
			}
			break
		}
		chunk := newMessage(MsgChunk, c.id)
		chunk["value"] = EncodeValue(v)
		if err := s.conn.Send(chunk); err != nil {
			return err
		}
	}
	return s.conn.Send(newMessage(MsgStreamEnd, c.id))
}

type serverCall struct {
	id     int64
	msg    Message
	ctx    context.Context
	cancel context.CancelFunc
	input  *mailbox
}

// inputData rebuilds the call's input. Streamed input is read lazily from
// the messages the host sends after the call.
func (c *serverCall) inputData(head span.Span) (value.PipelineData, error) {
	header := Message(c.msg.Map("input"))
	md := decodeMetadata(header.Map("metadata"))

	var data value.PipelineData
	switch kind := header.Str("kind"); kind {
	case "", "empty":
		return value.Empty(), nil
	case "value":
		v, err := DecodeValue(header["value"])
		if err != nil {
			return value.Empty(), err
		}
		data = value.FromValue(v)
	case "list_stream":
		data = value.FromListStream(value.NewListStream(head, nil, c.producer(header)))
	case "byte_stream":
		produce := c.producer(header)
		data = value.FromByteStream(value.NewByteStream(head, nil, decodeByteType(header.Str("byte_type")), func() ([]byte, error) {
			v, err := produce()
			if err != nil {
				return nil, err
			}
			return chunkBytes(v)
		}))
	default:
		return value.Empty(), malformed("unknown input kind %q", kind)
	}
	return data.WithMetadata(md), nil
}

func (c *serverCall) producer(header Message) value.Producer {
	first, hasFirst := header["first"]
	ended := header.Bool("ended")
	return func() (value.Value, error) {
		if hasFirst {
			hasFirst = false
			return DecodeValue(first)
		}
		if ended {
			return nil, io.EOF
		}
		m, err := c.input.pop(c.ctx)
		if err != nil {
			return nil, err
		}
		if m.Type() == MsgInputEnd {
			ended = true
			return nil, io.EOF
		}
		return DecodeValue(m["value"])
	}
}

// mailbox is an unbounded queue, so the reader never blocks on a command
// that is slow to consume its input.
type mailbox struct {
	mu     sync.Mutex
	items  []Message
	closed bool
	ready  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (b *mailbox) push(m Message) {
	b.mu.Lock()
	b.items = append(b.items, m)
	b.mu.Unlock()
	b.wake()
}

func (b *mailbox) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wake()
}

func (b *mailbox) wake() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

func (b *mailbox) pop(ctx context.Context) (Message, error) {
	for {
		b.mu.Lock()
		if len(b.items) > 0 {
			m := b.items[0]
			b.items = b.items[1:]
			b.mu.Unlock()
			return m, nil
		}
		closed := b.closed
		b.mu.Unlock()

		if closed {
			return nil, io.EOF
		}
		select {
		case <-b.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
