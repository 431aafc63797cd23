package plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/josephlewis42/pipeshell/core/logger"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
)

// State is where a plugin instance is in its lifecycle.
type State int

const (
	StateNotSpawned State = iota
	StateSpawning
	StateReady
	StateCalling
	StateStreaming
	StateErrored
	StateClosed
)

var stateNames = map[State]string{
	StateNotSpawned: "not-spawned",
	StateSpawning:   "spawning",
	StateReady:      "ready",
	StateCalling:    "calling",
	StateStreaming:  "streaming",
	StateErrored:    "errored",
	StateClosed:     "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Live reports whether the process behind the state is still usable.
func (s State) Live() bool {
	return s == StateSpawning || s == StateReady || s == StateCalling || s == StateStreaming
}

type inbound struct {
	msg Message
	err error
}

// instance is one running plugin process. At most one call is in flight on
// it at any time.
type instance struct {
	id   Identity
	host *Host
	log  *log.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	conn   *Conn
	msgs   chan inbound
	quit   chan struct{}
	exited chan struct{}

	stopOnce sync.Once
	stopErr  error

	mu       sync.Mutex
	state    State
	sigs     []*signature.Signature
	lastUsed time.Time
	nextID   int64
	calls    int
}

func (in *instance) State() State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

func (in *instance) setState(s State) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.state = s
}

// acquire moves a ready instance to Calling.
func (in *instance) acquire() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state != StateReady {
		return false
	}
	in.state = StateCalling
	return true
}

// release returns a busy instance to Ready.
func (in *instance) release() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state == StateCalling || in.state == StateStreaming {
		in.state = StateReady
		in.lastUsed = in.host.now()
	}
}

// claimIdle moves an instance that has been ready since before cutoff to
// Closed so no call can pick it up while it is being stopped.
func (in *instance) claimIdle(cutoff time.Time) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state != StateReady || in.lastUsed.After(cutoff) {
		return false
	}
	in.state = StateClosed
	return true
}

func (in *instance) pid() int {
	if in.cmd == nil || in.cmd.Process == nil {
		return 0
	}
	return in.cmd.Process.Pid
}

func (h *Host) spawn(ctx context.Context, id Identity) (*instance, error) {
	in := &instance{
		id:     id,
		host:   h,
		log:    h.log.With("plugin", id.Filename),
		msgs:   make(chan inbound),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
		state:  StateSpawning,
	}

	fail := func(label string, err error) error {
		in.setState(StateErrored)
		h.metrics.SpawnFailures.WithLabelValues(id.Filename).Inc()
		h.events.Record(logger.EventPluginError, logger.Fields{"plugin": id.Filename, "error": err.Error()})
		in.log.Error("plugin failed to start", "err", err)
		return shellerr.Newf(shellerr.PluginSpawnFailure, "Plugin `%s` failed to start", id.Filename).
			WithLabel(label, span.Unknown).Wrap(err)
	}

	args := append(append([]string{}, id.Args...), StdioFlag)
	cmd := exec.Command(id.ExecutablePath, args...)
	cmd.Stderr = &lineLogger{log: in.log}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fail("could not open plugin stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fail("could not open plugin stdout", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fail("could not run plugin executable", err)
	}

	in.cmd = cmd
	in.stdin = stdin
	in.conn = NewConn(stdout, stdin)
	h.metrics.Spawns.WithLabelValues(id.Filename).Inc()
	h.metrics.Live.Inc()
	go in.readLoop()

	sigs, err := in.handshake(ctx)
	if err != nil {
		in.stop("handshake_failed", false)
		return nil, fail("plugin handshake failed", err)
	}

	in.mu.Lock()
	in.sigs = sigs
	in.state = StateReady
	in.lastUsed = h.now()
	in.mu.Unlock()

	h.events.Record(logger.EventPluginSpawn, logger.Fields{"plugin": id.Filename, "pid": in.pid()})
	in.log.Debug("plugin ready", "pid", in.pid(), "commands", len(sigs))
	return in, nil
}

func (in *instance) handshake(ctx context.Context) ([]*signature.Signature, error) {
	hello := newMessage(MsgHello, 0)
	hello["protocol"] = ProtocolName
	hello["version"] = ProtocolVersion
	if err := in.conn.Send(hello); err != nil {
		return nil, err
	}

	timer := time.NewTimer(in.host.opts.HandshakeTimeout)
	defer timer.Stop()

	var reply Message
	select {
	case ib, ok := <-in.msgs:
		switch {
		case !ok:
			return nil, errors.New("plugin exited before the handshake")
		case ib.err != nil:
			return nil, ib.err
		}
		reply = ib.msg
	case <-timer.C:
		return nil, fmt.Errorf("no handshake within %s", in.host.opts.HandshakeTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	switch {
	case reply.Type() != MsgHello:
		return nil, fmt.Errorf("expected %q, got %q", MsgHello, reply.Type())
	case reply.Str("protocol") != ProtocolName:
		return nil, fmt.Errorf("unknown protocol %q", reply.Str("protocol"))
	case reply.Int("version") != ProtocolVersion:
		return nil, fmt.Errorf("protocol version %d, want %d", reply.Int("version"), ProtocolVersion)
	}

	var sigs []*signature.Signature
	for _, raw := range reply.List("signatures") {
		sig, err := DecodeSignature(raw)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

func (in *instance) readLoop() {
	for {
		m, err := in.conn.Recv()
		if err != nil && in.State() == StateReady {
			// Exited while idle. No call is reading msgs, so stop here; a
			// call that races in still sees the error or the closed channel.
			in.log.Debug("plugin exited while idle", "err", err)
			go in.stop("exited", false)
		}
		select {
		case in.msgs <- inbound{msg: m, err: err}:
		case <-in.quit:
		}
		if err != nil {
			break
		}
	}
	close(in.msgs)
	_ = in.cmd.Wait()
	close(in.exited)
}

// stop ends the process. A graceful stop says goodbye and waits up to the
// cancel grace period before killing it.
func (in *instance) stop(reason string, graceful bool) error {
	in.stopOnce.Do(func() {
		final := StateErrored
		if graceful {
			final = StateClosed
		}
		in.setState(final)
		close(in.quit)

		if graceful {
			if err := in.conn.Send(newMessage(MsgGoodbye, 0)); err != nil {
				in.log.Debug("goodbye failed", "err", err)
			}
		}
		_ = in.stdin.Close()

		if graceful {
			select {
			case <-in.exited:
			case <-time.After(in.host.opts.CancelGrace):
				in.stopErr = fmt.Errorf("plugin %s did not exit after goodbye", in.id.Filename)
			}
		}
		_ = in.cmd.Process.Kill()
		<-in.exited

		in.host.metrics.Teardowns.WithLabelValues(in.id.Filename, reason).Inc()
		in.host.metrics.Live.Dec()
		in.host.events.Record(logger.EventPluginExit, logger.Fields{"plugin": in.id.Filename, "reason": reason})
		in.log.Debug("plugin stopped", "reason", reason, "pid", in.pid())
	})
	return in.stopErr
}

// call sends a call and waits for the first reply. A stream reply is
// returned as a lazy PipelineData that keeps the instance busy until it
// ends.
func (in *instance) call(ctx context.Context, name string, call *signature.EvaluatedCall, input value.PipelineData, signals *value.Signals) (value.PipelineData, error) {
	in.mu.Lock()
	in.nextID++
	in.calls++
	id := in.nextID
	in.mu.Unlock()

	c := &activeCall{
		in:      in,
		id:      id,
		name:    name,
		head:    call.Head,
		ctx:     ctx,
		signals: signals,
		started: in.host.now(),
	}

	pump, header, err := newInputPump(id, input, call.Head, signals)
	if err != nil {
		in.release()
		return value.Empty(), err
	}
	c.pump = pump

	msg := newMessage(MsgCall, id)
	encodeCall(msg, name, call)
	msg["input"] = header
	if err := in.conn.Send(msg); err != nil {
		if errors.Is(err, errEncode) {
			// Nothing reached the plugin; it is still healthy.
			c.pump.abandon()
			in.release()
			return value.Empty(), shellerr.New(shellerr.GenericError, "Cannot send call to plugin").
				WithLabel(err.Error(), call.Head).Wrap(err)
		}
		return value.Empty(), c.broken(err)
	}

	reply, err := c.next()
	if err != nil {
		return value.Empty(), err
	}

	switch reply.Type() {
	case MsgValue:
		v, err := DecodeValue(reply["value"])
		if err != nil {
			return value.Empty(), c.broken(err)
		}
		c.done(resultValue)
		return value.FromValue(v), nil
	case MsgError:
		c.done(resultError)
		return value.Empty(), reportedError(reply, c.head)
	case MsgStreamStart:
		in.setState(StateStreaming)
		return c.stream(reply), nil
	}
	return value.Empty(), c.broken(unexpected(reply))
}

func unexpected(m Message) error {
	return fmt.Errorf("%w: unexpected %q message", errMalformed, m.Type())
}

// activeCall tracks one call from send to its terminal message.
type activeCall struct {
	in       *instance
	id       int64
	name     string
	head     span.Span
	ctx      context.Context
	signals  *value.Signals
	pump     *inputPump
	started  time.Time
	finished bool
}

// next returns the next message for this call. Remaining input is fed to
// the plugin while it has nothing to say, so a plugin that reads all of its
// input before replying doesn't deadlock.
func (c *activeCall) next() (Message, error) {
	for {
		if c.ctx.Err() != nil || c.signals.Interrupted() {
			return nil, c.cancel()
		}

		if c.pump.pending() {
			select {
			case ib, ok := <-c.in.msgs:
				return c.receive(ib, ok)
			default:
			}
			if err := c.pump.sendNext(c.in.conn); err != nil {
				return nil, c.broken(err)
			}
			continue
		}

		select {
		case ib, ok := <-c.in.msgs:
			return c.receive(ib, ok)
		case <-c.ctx.Done():
			return nil, c.cancel()
		case <-c.signals.Done():
			return nil, c.cancel()
		}
	}
}

func (c *activeCall) receive(ib inbound, ok bool) (Message, error) {
	switch {
	case !ok:
		return nil, c.broken(io.ErrUnexpectedEOF)
	case ib.err != nil:
		return nil, c.broken(ib.err)
	case ib.msg.ID() != c.id:
		return nil, c.broken(fmt.Errorf("%w: %q message for call %d during call %d",
			errMalformed, ib.msg.Type(), ib.msg.ID(), c.id))
	}
	return ib.msg, nil
}

// done records a call that reached its terminal message.
func (c *activeCall) done(result string) {
	if c.finished {
		return
	}
	c.finished = true
	c.pump.close(c.in.conn)
	m := c.in.host.metrics
	m.Calls.WithLabelValues(c.in.id.Filename, result).Inc()
	m.CallDuration.WithLabelValues(c.in.id.Filename).Observe(c.in.host.now().Sub(c.started).Seconds())
	c.in.release()
}

// broken tears the instance down after a transport or protocol failure.
// The next call respawns the plugin.
func (c *activeCall) broken(err error) error {
	if !c.finished {
		c.finished = true
		c.pump.abandon()
		c.in.host.metrics.Calls.WithLabelValues(c.in.id.Filename, resultBroken).Inc()
	}
	c.in.host.events.Record(logger.EventPluginError, logger.Fields{"plugin": c.in.id.Filename, "error": err.Error()})
	c.in.log.Warn("plugin connection broken", "call", c.name, "err", err)
	c.in.stop("protocol_error", false)

	msg := "Plugin protocol violation"
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		msg = "Plugin exited unexpectedly"
	}
	return shellerr.New(shellerr.PluginProtocolViolation, msg).
		WithLabel(fmt.Sprintf("while running `%s`: %v", c.name, err), c.head).Wrap(err)
}

// cancel asks the plugin to stop and drains the call to its terminal
// message. A plugin that doesn't finish within the grace period is killed.
func (c *activeCall) cancel() error {
	interrupted := shellerr.Interrupted(c.head)
	if c.finished {
		return interrupted
	}
	c.pump.close(c.in.conn)
	if err := c.in.conn.Send(newMessage(MsgCancel, c.id)); err != nil {
		c.broken(err)
		return interrupted
	}

	grace := time.NewTimer(c.in.host.opts.CancelGrace)
	defer grace.Stop()
	for {
		select {
		case ib, ok := <-c.in.msgs:
			if !ok || ib.err != nil || ib.msg.ID() != c.id {
				c.broken(errors.New("connection lost while cancelling"))
				return interrupted
			}
			switch ib.msg.Type() {
			case MsgValue, MsgError, MsgStreamEnd:
				c.done(resultCancelled)
				return interrupted
			}
		case <-grace.C:
			c.finished = true
			c.in.host.metrics.Calls.WithLabelValues(c.in.id.Filename, resultCancelled).Inc()
			c.in.log.Warn("plugin ignored cancellation", "call", c.name, "grace", c.in.host.opts.CancelGrace)
			c.in.stop("cancel_timeout", false)
			return interrupted
		}
	}
}

// stream exposes a stream reply. Closing it early cancels the call.
func (c *activeCall) stream(start Message) value.PipelineData {
	md := decodeMetadata(start.Map("metadata"))

	next := func() (value.Value, error) {
		if c.finished {
			return nil, io.EOF
		}
		m, err := c.next()
		if err != nil {
			return nil, err
		}
		switch m.Type() {
		case MsgChunk:
			v, err := DecodeValue(m["value"])
			if err != nil {
				return nil, c.broken(err)
			}
			return v, nil
		case MsgStreamEnd:
			c.done(resultStream)
			return nil, io.EOF
		case MsgError:
			c.done(resultError)
			return nil, reportedError(m, c.head)
		}
		return nil, c.broken(unexpected(m))
	}
	abandon := func() {
		if !c.finished {
			_ = c.cancel()
		}
	}

	if start.Str("kind") == "bytes" {
		bs := value.NewByteStream(c.head, c.signals, decodeByteType(start.Str("byte_type")), func() ([]byte, error) {
			v, err := next()
			if err != nil {
				return nil, err
			}
			b, err := chunkBytes(v)
			if err != nil {
				return nil, c.broken(err)
			}
			return b, nil
		})
		bs.OnClose(abandon)
		return value.FromByteStream(bs).WithMetadata(md)
	}

	ls := value.NewListStream(c.head, c.signals, next).OnClose(abandon)
	return value.FromListStream(ls).WithMetadata(md)
}

// inputPump feeds a streaming input to the plugin one item at a time.
type inputPump struct {
	id    int64
	items *value.ListStream
	ended bool
}

func newInputPump(id int64, input value.PipelineData, head span.Span, signals *value.Signals) (*inputPump, map[string]interface{}, error) {
	header := map[string]interface{}{"kind": "empty"}
	if md := input.Metadata(); md != nil {
		header["metadata"] = encodeMetadata(md)
	}
	p := &inputPump{id: id, ended: true}

	switch input.Kind() {
	case value.DataValue:
		v, _ := input.Value()
		header["kind"] = "value"
		header["value"] = EncodeValue(v)

	case value.DataListStream, value.DataByteStream:
		header["kind"] = "list_stream"
		if input.Kind() == value.DataByteStream {
			header["kind"] = "byte_stream"
			header["byte_type"] = encodeByteType(input.ByteStream().Type())
		}
		items, err := input.Iter(head, signals)
		if err != nil {
			return nil, nil, err
		}
		first, ok := items.Next()
		if !ok {
			if err := items.Err(); err != nil {
				return nil, nil, err
			}
			header["ended"] = true
			break
		}
		header["first"] = EncodeValue(first)
		p.items = items
		p.ended = false
	}
	return p, header, nil
}

func (p *inputPump) pending() bool {
	return p != nil && !p.ended
}

func (p *inputPump) sendNext(conn *Conn) error {
	v, ok := p.items.Next()
	if !ok {
		p.ended = true
		return conn.Send(newMessage(MsgInputEnd, p.id))
	}
	m := newMessage(MsgInputChunk, p.id)
	m["value"] = EncodeValue(v)
	return conn.Send(m)
}

// close stops reading the upstream and tells the plugin no more input is
// coming.
func (p *inputPump) close(conn *Conn) {
	if p == nil || p.ended {
		return
	}
	p.abandon()
	_ = conn.Send(newMessage(MsgInputEnd, p.id))
}

// abandon stops reading the upstream without telling the plugin.
func (p *inputPump) abandon() {
	if p == nil {
		return
	}
	p.ended = true
	if p.items != nil {
		p.items.Close()
	}
}

// lineLogger forwards a plugin's stderr to the diagnostic log a line at a
// time.
type lineLogger struct {
	log *log.Logger
	mu  sync.Mutex
	buf []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(l.buf[:i]), "\r")
		l.buf = l.buf[i+1:]
		if line != "" {
			l.log.Info(line)
		}
	}
	return len(p), nil
}
