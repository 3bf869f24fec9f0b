package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ponyo877/relaychat/server/adaptor"
	"github.com/ponyo877/relaychat/server/domain"
	"github.com/ponyo877/relaychat/server/repository"
	"github.com/ponyo877/relaychat/server/usecase"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const waitFor = 2 * time.Second

var errTransportClosed = errors.New("transport closed")

// fakeTransport is a Transport driven by channels.
type fakeTransport struct {
	events chan domain.Event
	out    chan string

	failSend atomic.Bool
	failPing atomic.Bool
	closed   atomic.Bool
	once     sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events: make(chan domain.Event, 64),
		out:    make(chan string, 256),
	}
}

func (f *fakeTransport) Events() <-chan domain.Event { return f.events }

func (f *fakeTransport) Send(text string) error {
	if f.closed.Load() || f.failSend.Load() {
		return errTransportClosed
	}
	f.out <- text
	return nil
}

func (f *fakeTransport) Ping() error {
	if f.closed.Load() || f.failPing.Load() {
		return errTransportClosed
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.hangUp(1000, "closed")
	return nil
}

// hangUp simulates the peer going away.
func (f *fakeTransport) hangUp(code int, reason string) {
	f.once.Do(func() {
		f.closed.Store(true)
		f.events <- domain.NewCloseEvent(code, reason)
		close(f.events)
	})
}

func (f *fakeTransport) Closed() bool { return f.closed.Load() }

func (f *fakeTransport) RemoteAddr() string { return "test" }

// client is one simulated peer connected to a node.
type client struct {
	t         *testing.T
	transport *fakeTransport
	conn      *usecase.Connection
}

func (c *client) send(line string) {
	c.transport.events <- domain.NewTextEvent(line)
}

// next returns the next notification sent to the client.
func (c *client) next() string {
	c.t.Helper()
	select {
	case msg := <-c.transport.out:
		return msg
	case <-time.After(waitFor):
		c.t.Fatal("timed out waiting for a message")
		return ""
	}
}

func (c *client) expect(want string) {
	c.t.Helper()
	require.Equal(c.t, want, c.next())
}

func (c *client) expectPrefix(prefix string) string {
	c.t.Helper()
	msg := c.next()
	require.True(c.t, strings.HasPrefix(msg, prefix), "got %q, want prefix %q", msg, prefix)
	return msg
}

// until reads messages up to and including the first one equal to want.
func (c *client) until(want string) []string {
	c.t.Helper()
	var seen []string
	for {
		msg := c.next()
		seen = append(seen, msg)
		if msg == want {
			return seen
		}
	}
}

// quiet asserts nothing is queued for the client right now.
func (c *client) quiet() {
	c.t.Helper()
	select {
	case msg := <-c.transport.out:
		c.t.Fatalf("unexpected message %q", msg)
	default:
	}
}

func (c *client) id() string {
	return c.conn.ID()
}

// setName names the client and returns the issued token.
func (c *client) setName(name string) string {
	c.t.Helper()
	c.send("SETNAME " + name)
	token := strings.TrimPrefix(c.expectPrefix("TOKEN "), "TOKEN ")
	c.expect(domain.IDMessage(c.id()))
	c.expect(domain.NameMessage(name))
	return token
}

// join puts a named client in room and drains everything up to its own
// JOINED announcement.
func (c *client) join(room, name string) []string {
	c.t.Helper()
	c.send("JOIN " + room)
	return c.until(domain.JoinedMessage(c.id(), name))
}

type node struct {
	t        *testing.T
	registry *usecase.Registry
}

type cluster struct {
	t      *testing.T
	cfg    domain.Config
	ledger usecase.Ledger
	codec  usecase.TokenCodec
	newBus func(origin string) usecase.Bus
	mr     *miniredis.Miniredis
	logger *zap.Logger
}

func testConfig() domain.Config {
	cfg := domain.DefaultConfig()
	cfg.JWTSecret = "test-secret"
	cfg.PublicURL = "https://chat.example.com"
	cfg.AttendanceInterval = time.Hour
	return cfg
}

// newLocalCluster shares one in-process bus and one SQLite ledger.
func newLocalCluster(t *testing.T) *cluster {
	t.Helper()
	db, err := repository.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := repository.NewMemoryBus("local", nil)
	cfg := testConfig()
	return &cluster{
		t:      t,
		cfg:    cfg,
		ledger: repository.NewSQLiteLedger(db),
		codec:  adaptor.NewJWTCodec(cfg.JWTSecret, 0),
		newBus: func(string) usecase.Bus { return bus },
	}
}

// newRedisCluster keeps the ledger and the bus in one miniredis.
func newRedisCluster(t *testing.T) *cluster {
	t.Helper()
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { c.Close() })
		return c
	}
	cfg := testConfig()
	return &cluster{
		t:      t,
		cfg:    cfg,
		ledger: repository.NewRedisLedger(newClient()),
		codec:  adaptor.NewJWTCodec(cfg.JWTSecret, 0),
		newBus: func(origin string) usecase.Bus { return repository.NewRedisBus(newClient(), origin, nil) },
		mr:     mr,
	}
}

func (cl *cluster) node(origin string) *node {
	return cl.nodeWith(origin, cl.ledger)
}

func (cl *cluster) nodeWith(origin string, ledger usecase.Ledger) *node {
	t := cl.t
	t.Helper()
	reg := usecase.NewRegistry(cl.cfg, ledger, cl.newBus(origin), cl.codec, cl.logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		reg.Run(ctx)
	}()
	t.Cleanup(func() {
		reg.Shutdown()
		cancel()
		<-done
	})

	select {
	case <-reg.Ready():
	case <-time.After(waitFor):
		t.Fatal("registry never subscribed")
	}
	return &node{t: t, registry: reg}
}

func (n *node) connect() *client {
	ft := newFakeTransport()
	conn := n.registry.Accept(ft)
	go conn.Serve(context.Background())
	return &client{t: n.t, transport: ft, conn: conn}
}

// spyLedger counts writes made through it.
type spyLedger struct {
	usecase.Ledger

	mu        sync.Mutex
	setTopics int
	renewed   [][]string
}

func (s *spyLedger) SetTopic(ctx context.Context, room, owner, topic string) (bool, error) {
	s.mu.Lock()
	s.setTopics++
	s.mu.Unlock()
	return s.Ledger.SetTopic(ctx, room, owner, topic)
}

func (s *spyLedger) Renew(ctx context.Context, rooms []string, ttl time.Duration) error {
	s.mu.Lock()
	s.renewed = append(s.renewed, append([]string(nil), rooms...))
	s.mu.Unlock()
	return s.Ledger.Renew(ctx, rooms, ttl)
}

func (s *spyLedger) topicWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setTopics
}

// stealingLedger runs steal right before every topic write reaches the
// wrapped ledger.
type stealingLedger struct {
	usecase.Ledger
	steal func(ctx context.Context, room string)
}

func (s *stealingLedger) SetTopic(ctx context.Context, room, owner, topic string) (bool, error) {
	s.steal(ctx, room)
	return s.Ledger.SetTopic(ctx, room, owner, topic)
}

var errRenew = errors.New("ledger unavailable")

// failingRenewLedger refuses every renewal.
type failingRenewLedger struct {
	usecase.Ledger
}

func (failingRenewLedger) Renew(ctx context.Context, rooms []string, ttl time.Duration) error {
	return errRenew
}

// flakyBus closes its first subscription straight away and delegates after.
type flakyBus struct {
	usecase.Bus

	mu         sync.Mutex
	subscribed int
}

func (b *flakyBus) Subscribe(ctx context.Context) (<-chan domain.Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed++
	if b.subscribed == 1 {
		ch := make(chan domain.Delivery)
		close(ch)
		return ch, nil
	}
	return b.Bus.Subscribe(ctx)
}

func (b *flakyBus) subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribed
}
