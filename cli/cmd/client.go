/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ponyo877/relaychat/server/domain"
)

const writeWait = 10 * time.Second

var errConnectionClosed = errors.New("connection closed")

type clientOptions struct {
	URL   string
	Token string
	Name  string
	// SaveToken is called whenever the server issues or revokes a token.
	SaveToken func(token string)
}

// relayClient is one websocket session with a relay server.
type relayClient struct {
	conn *websocket.Conn
	opts clientOptions

	lines chan string
	done  chan struct{}

	mu    sync.Mutex
	id    string
	name  string
	token string
}

func dialRelay(ctx context.Context, opts clientOptions) (*relayClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.URL, err)
	}
	c := &relayClient{
		conn:  conn,
		opts:  opts,
		lines: make(chan string, 64),
		done:  make(chan struct{}),
		token: opts.Token,
	}
	go c.readLoop()
	return c, nil
}

func (c *relayClient) readLoop() {
	defer close(c.lines)
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		line := string(data)
		c.observe(line)
		c.lines <- line
	}
}

// observe tracks identity notifications as they go by.
func (c *relayClient) observe(line string) {
	args := domain.Tokenize(line)
	if len(args) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch args[0] {
	case domain.KeywordID:
		if len(args) > 1 {
			c.id = args[1]
		}
	case domain.KeywordName:
		if len(args) > 1 {
			c.name = args[1]
		}
	case domain.KeywordToken:
		token := ""
		if len(args) > 1 {
			token = args[1]
		}
		c.token = token
		if c.opts.SaveToken != nil {
			c.opts.SaveToken(token)
		}
	}
}

// Lines yields every notification from the server until the connection ends.
func (c *relayClient) Lines() <-chan string {
	return c.lines
}

func (c *relayClient) Identity() (id, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id, c.name
}

// Send writes one command line built from parts.
func (c *relayClient) Send(parts ...string) error {
	return c.SendRaw(domain.Merge(parts...))
}

func (c *relayClient) SendRaw(line string) error {
	select {
	case <-c.done:
		return errConnectionClosed
	default:
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (c *relayClient) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return c.conn.Close()
}

// await reads lines until match returns true or an ERROR arrives. Lines read
// on the way are passed to skipped, which may be nil.
func (c *relayClient) await(ctx context.Context, match func(args []string) bool, skipped func(string)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-c.lines:
			if !ok {
				return errConnectionClosed
			}
			args := domain.Tokenize(line)
			if match(args) {
				return nil
			}
			if len(args) > 1 && args[0] == domain.KeywordError {
				return errors.New(args[1])
			}
			if skipped != nil {
				skipped(line)
			}
		}
	}
}

func keyword(want string) func([]string) bool {
	return func(args []string) bool {
		return len(args) > 0 && args[0] == want
	}
}

// Identify restores the stored identity, or names the session when there is
// none or the server refuses it.
func (c *relayClient) Identify(ctx context.Context) error {
	refused := ""
	if c.opts.Token != "" {
		if err := c.SendRaw("MIGRATE " + c.opts.Token); err != nil {
			return err
		}
		migrated := false
		err := c.await(ctx, func(args []string) bool {
			switch {
			case len(args) > 1 && args[0] == domain.KeywordName:
				migrated = true
				return true
			case len(args) > 1 && args[0] == domain.KeywordError:
				refused = args[1]
				return true
			}
			return false
		}, nil)
		if err != nil {
			return fmt.Errorf("failed to restore identity: %w", err)
		}
		if migrated {
			return nil
		}
	}

	name := c.opts.Name
	if name == "" {
		name = domain.GenerateName()
	}
	if err := c.Send("SETNAME", name); err != nil {
		if refused != "" {
			return fmt.Errorf("server refused stored identity: %s", refused)
		}
		return err
	}
	if err := c.await(ctx, keyword(domain.KeywordName), nil); err != nil {
		return fmt.Errorf("failed to set name %q: %w", name, err)
	}
	return nil
}

// Join enters room and returns once the server has announced this session.
// Lines that arrive before that are handed to skipped.
func (c *relayClient) Join(ctx context.Context, room string, skipped func(string)) error {
	if err := c.Send("JOIN", room); err != nil {
		return err
	}
	id, _ := c.Identity()
	return c.await(ctx, func(args []string) bool {
		return len(args) > 1 && args[0] == domain.KeywordJoined && args[1] == id
	}, skipped)
}
