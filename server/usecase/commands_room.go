package usecase

import (
	"context"
	"strings"

	"github.com/ponyo877/relaychat/server/domain"
)

func RoomCommands() Commands {
	return Commands{
		"room": func(ctx context.Context, c *Connection, args ...string) error {
			room, _ := c.Room()
			c.Send(domain.RoomMessage(room))
			return nil
		},
		"join": func(ctx context.Context, c *Connection, args ...string) error {
			return c.Join(ctx, arg(args, 0))
		},
		"leave": func(ctx context.Context, c *Connection, args ...string) error {
			return c.Leave(ctx)
		},
		"send": func(ctx context.Context, c *Connection, args ...string) error {
			return c.Say(ctx, strings.Join(args, " "))
		},
		"topic": func(ctx context.Context, c *Connection, args ...string) error {
			return c.SetRoomTopic(ctx, strings.Join(args, " "))
		},
	}
}
