package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ponyo877/relaychat/server/domain"
	"go.uber.org/zap"
)

var errNoTopicPermission = domain.Errorf(domain.ErrNotAuthorized, "You don't have permission to change the topic")

// Listener receives events of the kind it was registered for.
type Listener func(ctx context.Context, ev domain.Event)

type listenerEntry struct {
	fn Listener
}

// hub is the part of the Registry a Connection talks back to.
type hub interface {
	Rebind(c *Connection, id, name string) error
	Publish(ctx context.Context, room, message string) error
}

// Connection is the protocol state of one client: its identity, its room and
// the transport it owns.
type Connection struct {
	transport Transport
	hub       hub
	ledger    Ledger
	codec     TokenCodec
	leaseTTL  time.Duration
	base      *zap.Logger
	metrics   *Metrics

	connectedAt time.Time
	closeOnce   sync.Once
	closed      atomic.Bool

	mu        sync.RWMutex
	id        string
	name      string
	room      string
	logger    *zap.Logger
	listeners map[domain.EventKind][]*listenerEntry
}

func newConnection(t Transport, h hub, ledger Ledger, codec TokenCodec, leaseTTL time.Duration, logger *zap.Logger, metrics *Metrics) *Connection {
	id := domain.NewID()
	return &Connection{
		transport:   t,
		hub:         h,
		ledger:      ledger,
		codec:       codec,
		leaseTTL:    leaseTTL,
		base:        logger,
		logger:      logger.With(zap.String("conn", id)),
		metrics:     metrics,
		connectedAt: time.Now(),
		id:          id,
		listeners:   make(map[domain.EventKind][]*listenerEntry),
	}
}

func (c *Connection) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

func (c *Connection) Name() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name, c.name != ""
}

func (c *Connection) Room() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room, c.room != ""
}

func (c *Connection) RemoteAddr() string {
	return c.transport.RemoteAddr()
}

func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

func (c *Connection) snapshot() (id, name, room string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id, c.name, c.room
}

// Logger is tagged with the connection's current id.
func (c *Connection) Logger() *zap.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

func (c *Connection) setIdentity(id, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.id {
		c.logger = c.base.With(zap.String("conn", id))
	}
	c.id = id
	c.name = name
}

// On registers fn for events of kind and returns a function that removes it.
func (c *Connection) On(kind domain.EventKind, fn Listener) func() {
	entry := &listenerEntry{fn: fn}
	c.mu.Lock()
	c.listeners[kind] = append(c.listeners[kind], entry)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		entries := c.listeners[kind]
		for i, e := range entries {
			if e == entry {
				c.listeners[kind] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

func (c *Connection) emit(ctx context.Context, ev domain.Event) {
	c.mu.RLock()
	entries := append([]*listenerEntry(nil), c.listeners[ev.Kind]...)
	c.mu.RUnlock()

	for _, e := range entries {
		e.fn(ctx, ev)
	}
}

// Serve consumes transport events in order until the transport is done.
// It blocks, so callers run it on the connection's own goroutine.
func (c *Connection) Serve(ctx context.Context) {
	c.emit(ctx, domain.NewOpenEvent())
	for ev := range c.transport.Events() {
		if ev.Kind == domain.EventClose {
			c.closeWith(ev)
			continue
		}
		c.emit(ctx, ev)
	}
	c.Close()
}

// Close is idempotent. Close listeners run exactly once.
func (c *Connection) Close() error {
	return c.closeWith(domain.NewCloseEvent(1000, "closed by server"))
}

func (c *Connection) closeWith(ev domain.Event) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if !c.transport.Closed() {
			err = c.transport.Close()
		}
		c.emit(context.Background(), ev)
	})
	return err
}

func (c *Connection) Closed() bool {
	return c.closed.Load() || c.transport.Closed()
}

// Send writes msg to the client. A failed write closes the connection.
func (c *Connection) Send(msg string) error {
	if c.Closed() {
		return fmt.Errorf("connection closed")
	}
	if err := c.transport.Send(msg); err != nil {
		c.Logger().Debug("send failed, closing", zap.Error(err))
		c.Close()
		return fmt.Errorf("error sending: %w", err)
	}
	return nil
}

func (c *Connection) Ping() error {
	return c.transport.Ping()
}

// Publish hands msg to every member of the connection's room, itself included.
func (c *Connection) Publish(ctx context.Context, msg string) error {
	room, ok := c.Room()
	if !ok {
		return domain.ErrNotInRoom
	}
	return c.hub.Publish(ctx, room, msg)
}

func (c *Connection) Token() (string, error) {
	id, name, _ := c.snapshot()
	if name == "" {
		return "", domain.ErrNotNamed
	}
	token, err := c.codec.Encode(domain.NewIdentity(id, name))
	if err != nil {
		return "", fmt.Errorf("error encoding token: %w", err)
	}
	return token, nil
}

func (c *Connection) SetName(ctx context.Context, name string) error {
	if err := domain.ValidateName(name); err != nil {
		return err
	}

	c.mu.Lock()
	id, oldName, room := c.id, c.name, c.room
	c.mu.Unlock()

	token, err := c.codec.Encode(domain.NewIdentity(id, name))
	if err != nil {
		return fmt.Errorf("error encoding token: %w", err)
	}

	c.mu.Lock()
	c.name = name
	c.mu.Unlock()

	c.Send(domain.TokenMessage(token))
	c.Send(domain.IDMessage(id))
	c.Send(domain.NameMessage(name))

	if room != "" {
		return c.hub.Publish(ctx, room, domain.SetNameMessage(id, oldName, name))
	}
	if oldName != "" {
		c.Send(domain.SuccessMessage("You changed your name to " + name))
	}
	return nil
}

// Migrate adopts the identity carried by token.
func (c *Connection) Migrate(ctx context.Context, token string) error {
	identity, err := c.codec.Decode(token)
	if err != nil {
		return err
	}

	oldID, oldName, _ := c.snapshot()
	if err := c.hub.Rebind(c, identity.ID, identity.Name); err != nil {
		return err
	}

	if room, ok := c.Room(); ok {
		return c.hub.Publish(ctx, room, domain.MigratedMessage(oldID, oldName, identity.ID, identity.Name))
	}
	c.Send(domain.IDMessage(identity.ID))
	c.Send(domain.NameMessage(identity.Name))
	return nil
}

func (c *Connection) Join(ctx context.Context, room string) error {
	if _, ok := c.Name(); !ok {
		return domain.Errorf(domain.ErrNotNamed, "You need to set a name before joining a room")
	}
	if err := domain.ValidateRoom(room); err != nil {
		return err
	}

	c.mu.Lock()
	id, name, previous := c.id, c.name, c.room
	if previous == room {
		c.mu.Unlock()
		c.Send(domain.RoomMessage(room))
		return nil
	}
	c.room = room
	c.mu.Unlock()

	if previous != "" {
		if err := c.hub.Publish(ctx, previous, domain.LeftMessage(id, name)); err != nil {
			c.Logger().Warn("failed to announce leave", zap.String("room", previous), zap.Error(err))
		}
	}

	c.Send(domain.RoomMessage(room))
	ledgerErr := c.settle(ctx, room, id)

	if err := c.hub.Publish(ctx, room, domain.JoinedMessage(id, name)); err != nil {
		return err
	}
	return ledgerErr
}

// settle reads the room's ledger entry after a join, renewing an existing
// lease or claiming a free room.
func (c *Connection) settle(ctx context.Context, room, id string) error {
	info, err := c.ledger.Get(ctx, room)
	if err != nil {
		return fmt.Errorf("error reading room %s: %w", room, err)
	}

	if info.IsOwned() {
		if err := c.ledger.Renew(ctx, []string{room}, c.leaseTTL); err != nil {
			c.Logger().Warn("failed to renew room", zap.String("room", room), zap.Error(err))
		}
		if info.Topic != "" {
			c.Send(domain.TopicMessage(info.Topic))
		}
		if info.IsOwnedBy(id) {
			c.Send(domain.SuccessMessage("You own this room"))
		}
		return nil
	}

	claimed, err := c.ledger.Claim(ctx, room, id, c.leaseTTL)
	if err != nil {
		return fmt.Errorf("error claiming room %s: %w", room, err)
	}
	if claimed {
		c.metrics.incr(metricRoomsClaimed, 1)
		c.Send(domain.SuccessMessage("You've just claimed this room!"))
		c.Send(domain.SuccessMessage("You can use the /topic command to set a topic"))
	}
	return nil
}

func (c *Connection) SetRoomTopic(ctx context.Context, topic string) error {
	id, _, room := c.snapshot()
	if room == "" {
		return domain.ErrNotInRoom
	}

	info, err := c.ledger.Get(ctx, room)
	if err != nil {
		return fmt.Errorf("error reading room %s: %w", room, err)
	}
	if !info.IsOwnedBy(id) {
		return errNoTopicPermission
	}
	if err := domain.ValidateTopic(topic); err != nil {
		return err
	}

	written, err := c.ledger.SetTopic(ctx, room, id, topic)
	if err != nil {
		return err
	}
	if !written {
		return errNoTopicPermission
	}
	c.Send(domain.SuccessMessage("Room topic changed."))
	if topic == "" {
		c.Send(domain.WarningMessage("You just set an empty topic"))
	}
	return c.hub.Publish(ctx, room, domain.TopicMessage(topic))
}

func (c *Connection) Leave(ctx context.Context) error {
	c.mu.Lock()
	id, name, room := c.id, c.name, c.room
	if room == "" {
		c.mu.Unlock()
		return domain.ErrNotInRoom
	}
	c.room = ""
	c.mu.Unlock()

	err := c.hub.Publish(ctx, room, domain.LeftMessage(id, name))
	c.Send(domain.RoomMessage(""))
	return err
}

// Say broadcasts a chat line from this connection to its room.
func (c *Connection) Say(ctx context.Context, text string) error {
	id, name, room := c.snapshot()
	if room == "" {
		return domain.ErrNotInRoom
	}
	return c.hub.Publish(ctx, room, domain.ChatMessage(id, name, text))
}
