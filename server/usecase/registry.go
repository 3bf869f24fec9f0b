package usecase

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ponyo877/relaychat/server/domain"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const (
	resubscribeMin = 100 * time.Millisecond
	resubscribeMax = 10 * time.Second
)

// Stats describes the connections held by one Registry.
type Stats struct {
	Connections int      `json:"connections"`
	Rooms       []string `json:"rooms"`
}

// Registry owns every live Connection on this node. Messages for a room
// reach local members only through the bus subscription started by Run.
type Registry struct {
	cfg        domain.Config
	ledger     Ledger
	bus        Bus
	codec      TokenCodec
	dispatcher *Dispatcher
	logger     *zap.Logger
	metrics    *Metrics

	// sweepHook observes the outcome of every attendance sweep.
	sweepHook atomic.Pointer[func(error)]
	ready     chan struct{}
	readyOnce sync.Once

	mu          sync.RWMutex
	connections map[string]*Connection
}

func NewRegistry(cfg domain.Config, ledger Ledger, bus Bus, codec TokenCodec, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PingParallelism <= 0 {
		cfg.PingParallelism = 1
	}
	metrics := NewMetrics()
	return &Registry{
		cfg:         cfg,
		ledger:      ledger,
		bus:         bus,
		codec:       codec,
		dispatcher:  NewDispatcher(cfg, logger, metrics),
		logger:      logger,
		metrics:     metrics,
		ready:       make(chan struct{}),
		connections: make(map[string]*Connection),
	}
}

func (r *Registry) Metrics() *Metrics {
	return r.metrics
}

// Register adds extra commands. It must be called before the first Accept.
func (r *Registry) Register(group Commands) {
	r.dispatcher.Register(group)
}

// OnSweep sets a function called with the result of every attendance sweep.
func (r *Registry) OnSweep(fn func(error)) {
	r.sweepHook.Store(&fn)
}

// Accept wraps t in a Connection and registers it. The caller must run
// Serve on the returned Connection.
func (r *Registry) Accept(t Transport) *Connection {
	c := newConnection(t, r, r.ledger, r.codec, r.cfg.LeaseTTL, r.logger, r.metrics)

	r.mu.Lock()
	r.connections[c.id] = c
	r.mu.Unlock()
	r.metrics.incr(metricAccepted, 1)
	r.metrics.incr(metricConnections, 1)

	c.On(domain.EventClose, func(ctx context.Context, ev domain.Event) {
		r.remove(c)
		r.metrics.decr(metricConnections, 1)
		id, name, room := c.snapshot()
		c.Logger().Debug("connection closed", zap.Int("code", ev.Code), zap.String("reason", ev.Reason))
		if room == "" {
			return
		}
		if err := r.Publish(ctx, room, domain.LeftMessage(id, name)); err != nil {
			c.Logger().Warn("failed to announce departure", zap.String("room", room), zap.Error(err))
		}
	})
	c.On(domain.EventText, func(ctx context.Context, ev domain.Event) {
		r.metrics.incr(metricCommands, 1)
		r.dispatcher.Dispatch(ctx, c, domain.NewLine(ev.Text))
	})

	c.Logger().Info("connection accepted", zap.String("remote", t.RemoteAddr()))
	return c
}

// remove drops c from the map only if the entry still points at c.
func (r *Registry) remove(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := c.ID()
	if r.connections[id] == c {
		delete(r.connections, id)
	}
}

func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connections[id]
	return c, ok
}

// Rebind moves c to newID and gives it newName.
func (r *Registry) Rebind(c *Connection, newID, newName string) error {
	var evicted *Connection

	r.mu.Lock()
	if holder, ok := r.connections[newID]; ok && holder != c {
		if !holder.Closed() {
			r.mu.Unlock()
			return domain.Errorf(domain.ErrIdentityInUse, "Somebody is already using that identity")
		}
		evicted = holder
	}
	oldID := c.ID()
	if r.connections[oldID] == c {
		delete(r.connections, oldID)
	}
	c.setIdentity(newID, newName)
	r.connections[newID] = c
	r.mu.Unlock()

	if evicted != nil {
		evicted.Close()
	}
	return nil
}

func (r *Registry) snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Collect(maps.Values(r.connections))
}

// BroadcastLocal delivers msg to every local connection in room.
func (r *Registry) BroadcastLocal(room, msg string) int {
	delivered := 0
	for _, c := range r.snapshot() {
		if current, ok := c.Room(); !ok || current != room {
			continue
		}
		if err := c.Send(msg); err != nil {
			r.metrics.incr(metricDropped, 1)
			continue
		}
		delivered++
	}
	r.metrics.incr(metricDeliveries, int64(delivered))
	return delivered
}

// Publish hands msg to the bus. Local members receive it from the
// subscription like everybody else.
func (r *Registry) Publish(ctx context.Context, room, msg string) error {
	r.metrics.incr(metricBroadcasts, 1)
	if err := r.bus.Publish(ctx, room, msg); err != nil {
		return fmt.Errorf("error publishing to %s: %w", room, err)
	}
	return nil
}

// TakeAttendance drops dead connections and renews the lease of every room
// that still has a local member.
func (r *Registry) TakeAttendance(ctx context.Context) error {
	r.metrics.incr(metricSweeps, 1)

	var mu sync.Mutex
	rooms := make(map[string]struct{})
	var dropped int

	p := pool.New().WithMaxGoroutines(r.cfg.PingParallelism)
	for _, c := range r.snapshot() {
		p.Go(func() {
			if err := r.check(c); err != nil {
				c.Logger().Debug("dropping connection", zap.Error(err))
				c.Close()
				mu.Lock()
				dropped++
				mu.Unlock()
				return
			}
			if room, ok := c.Room(); ok {
				mu.Lock()
				rooms[room] = struct{}{}
				mu.Unlock()
			}
		})
	}
	p.Wait()

	if dropped > 0 {
		r.metrics.incr(metricDropped, int64(dropped))
		r.logger.Info("dropped unresponsive connections", zap.Int("count", dropped))
	}
	if len(rooms) == 0 {
		return nil
	}
	keys := slices.Sorted(maps.Keys(rooms))
	if err := r.ledger.Renew(ctx, keys, r.cfg.LeaseTTL); err != nil {
		return fmt.Errorf("error renewing %d rooms: %w", len(keys), err)
	}
	return nil
}

func (r *Registry) check(c *Connection) error {
	if c.Closed() {
		return errors.New("transport closed")
	}
	if err := c.Ping(); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

func (r *Registry) sweep(ctx context.Context) {
	err := r.TakeAttendance(ctx)
	if err != nil {
		r.metrics.incr(metricSweepFailures, 1)
		r.logger.Error("attendance sweep failed", zap.Error(err))
	}
	if hook := r.sweepHook.Load(); hook != nil {
		(*hook)(err)
	}
}

// Run starts the bus subscription and the attendance ticker. It returns
// once ctx is done and both have stopped.
func (r *Registry) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.subscribe(ctx)
	}()
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.cfg.AttendanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(ctx)
			}
		}
	}()
	wg.Wait()
}

func (r *Registry) subscribe(ctx context.Context) {
	backoff := resubscribeMin
	for ctx.Err() == nil {
		deliveries, err := r.bus.Subscribe(ctx)
		if err == nil {
			backoff = resubscribeMin
			r.readyOnce.Do(func() { close(r.ready) })
			for d := range deliveries {
				r.BroadcastLocal(d.Room, d.Message)
			}
			if ctx.Err() != nil {
				return
			}
			err = errors.New("subscription ended")
		}
		r.metrics.incr(metricBusResubscribes, 1)
		r.logger.Warn("bus subscription lost, retrying", zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, resubscribeMax)
	}
}

// Ready is closed once the first bus subscription is established.
func (r *Registry) Ready() <-chan struct{} {
	return r.ready
}

func (r *Registry) Stats() Stats {
	conns := r.snapshot()
	rooms := make(map[string]struct{})
	for _, c := range conns {
		if room, ok := c.Room(); ok {
			rooms[room] = struct{}{}
		}
	}
	return Stats{
		Connections: len(conns),
		Rooms:       slices.Sorted(maps.Keys(rooms)),
	}
}

// Shutdown closes every local connection.
func (r *Registry) Shutdown() {
	for _, c := range r.snapshot() {
		c.Close()
	}
}
