package plugin

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/josephlewis42/pipeshell/core/logger"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/value"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultCancelGrace      = 2 * time.Second
	defaultIdleTimeout      = 5 * time.Minute
)

// Options configures a Host. Zero values select defaults.
type Options struct {
	Log        *log.Logger
	Events     *logger.SessionLogger
	Registerer prometheus.Registerer

	// HandshakeTimeout bounds how long a new process has to say hello.
	HandshakeTimeout time.Duration
	// CancelGrace bounds how long a cancelled call or a goodbye may take
	// before the process is killed.
	CancelGrace time.Duration
	// IdleTimeout is how long a ready instance is kept before ReapIdle stops
	// it.
	IdleTimeout time.Duration
}

// Host spawns plugin processes and keeps them warm between calls. Instances
// are pooled per Identity; a call that finds every instance busy spawns
// another one.
type Host struct {
	opts    Options
	log     *log.Logger
	events  *logger.SessionLogger
	metrics *Metrics
	now     func() time.Time

	mu    sync.Mutex
	pools map[string][]*instance
}

// NewHost creates a host with no running plugins.
func NewHost(opts Options) *Host {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.CancelGrace <= 0 {
		opts.CancelGrace = defaultCancelGrace
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}

	l := opts.Log
	if l == nil {
		l = log.New(io.Discard)
	}

	return &Host{
		opts:    opts,
		log:     l.WithPrefix("plugin"),
		events:  opts.Events,
		metrics: NewMetrics(opts.Registerer),
		now:     time.Now,
		pools:   make(map[string][]*instance),
	}
}

// Metrics returns the host's collectors.
func (h *Host) Metrics() *Metrics {
	return h.metrics
}

// Signatures starts the plugin if needed and returns the commands it
// declared during the handshake.
func (h *Host) Signatures(ctx context.Context, id Identity) ([]*signature.Signature, error) {
	in, err := h.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer in.release()

	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]*signature.Signature(nil), in.sigs...), nil
}

// Call runs a plugin command. The input is sent to the plugin and consumed;
// a streamed reply keeps its instance busy until the stream ends or is
// closed.
func (h *Host) Call(ctx context.Context, id Identity, name string, call *signature.EvaluatedCall, input value.PipelineData, signals *value.Signals) (value.PipelineData, error) {
	if err := signals.Check(call.Head); err != nil {
		input.Close()
		return value.Empty(), err
	}

	in, err := h.acquire(ctx, id)
	if err != nil {
		input.Close()
		return value.Empty(), err
	}
	return in.call(ctx, name, call, input, signals)
}

// acquire returns a ready instance moved to Calling, spawning one if every
// live instance is busy. Dead instances are dropped from the pool here.
func (h *Host) acquire(ctx context.Context, id Identity) (*instance, error) {
	key := id.key()

	h.mu.Lock()
	var found *instance
	var live []*instance
	for _, in := range h.pools[key] {
		if !in.State().Live() {
			continue
		}
		live = append(live, in)
		if found == nil && in.acquire() {
			found = in
		}
	}
	h.pools[key] = live
	h.mu.Unlock()

	if found != nil {
		return found, nil
	}

	in, err := h.spawn(ctx, id)
	if err != nil {
		return nil, err
	}
	in.acquire()

	h.mu.Lock()
	h.pools[key] = append(h.pools[key], in)
	h.mu.Unlock()
	return in, nil
}

// State reports the state of the plugin's most useful instance: a ready
// one if there is any, otherwise the newest.
func (h *Host) State(id Identity) State {
	h.mu.Lock()
	defer h.mu.Unlock()

	pool := h.pools[id.key()]
	if len(pool) == 0 {
		return StateNotSpawned
	}
	for _, in := range pool {
		if s := in.State(); s == StateReady {
			return s
		}
	}
	return pool[len(pool)-1].State()
}

// Info describes one plugin process.
type Info struct {
	Plugin   string
	Path     string
	PID      int
	State    State
	Calls    int
	LastUsed time.Time
}

// Instances lists every pooled process, ordered by plugin name.
func (h *Host) Instances() []Info {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []Info
	for _, pool := range h.pools {
		for _, in := range pool {
			in.mu.Lock()
			out = append(out, Info{
				Plugin:   in.id.Filename,
				Path:     in.id.ExecutablePath,
				PID:      in.pid(),
				State:    in.state,
				Calls:    in.calls,
				LastUsed: in.lastUsed,
			})
			in.mu.Unlock()
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Plugin != out[j].Plugin {
			return out[i].Plugin < out[j].Plugin
		}
		return out[i].PID < out[j].PID
	})
	return out
}

// ReapIdle stops instances that have been ready for longer than the idle
// timeout and returns how many were stopped.
func (h *Host) ReapIdle(now time.Time) int {
	cutoff := now.Add(-h.opts.IdleTimeout)

	h.mu.Lock()
	var idle []*instance
	for _, pool := range h.pools {
		for _, in := range pool {
			if in.claimIdle(cutoff) {
				idle = append(idle, in)
			}
		}
	}
	h.mu.Unlock()

	for _, in := range idle {
		if err := in.stop("idle", true); err != nil {
			h.log.Warn("idle plugin did not exit cleanly", "plugin", in.id.Filename, "err", err)
		}
	}
	if len(idle) > 0 {
		h.log.Debug("reaped idle plugins", "count", len(idle))
	}
	return len(idle)
}

// Close says goodbye to every plugin process in parallel and waits for
// them to exit.
func (h *Host) Close() error {
	h.mu.Lock()
	var all []*instance
	for key, pool := range h.pools {
		all = append(all, pool...)
		delete(h.pools, key)
	}
	h.mu.Unlock()

	var g errgroup.Group
	for _, in := range all {
		in := in
		g.Go(func() error {
			return in.stop("shutdown", true)
		})
	}
	return g.Wait()
}
