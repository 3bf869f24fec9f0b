package usecase

import (
	"context"
	"errors"

	"github.com/ponyo877/relaychat/server/domain"
)

func IdentityCommands() Commands {
	return Commands{
		"id": func(ctx context.Context, c *Connection, args ...string) error {
			c.Send(domain.IDMessage(c.ID()))
			return nil
		},
		"token": func(ctx context.Context, c *Connection, args ...string) error {
			token, err := c.Token()
			if err != nil {
				return err
			}
			c.Send(domain.TokenMessage(token))
			return nil
		},
		"migrate": func(ctx context.Context, c *Connection, args ...string) error {
			err := c.Migrate(ctx, arg(args, 0))
			switch {
			case err == nil:
				return nil
			case errors.Is(err, domain.ErrIdentityInUse):
				c.Send(domain.ErrorMessage(domain.Message(err)))
				c.Close()
				return nil
			case errors.Is(err, domain.ErrInvalidToken):
				c.Send(domain.ErrorMessage(domain.Message(err)))
				c.Send(domain.TokenMessage(""))
				return nil
			default:
				return err
			}
		},
		"setname": func(ctx context.Context, c *Connection, args ...string) error {
			return c.SetName(ctx, arg(args, 0))
		},
		"name": func(ctx context.Context, c *Connection, args ...string) error {
			if len(args) == 0 {
				if name, ok := c.Name(); ok {
					c.Send(domain.SuccessMessage("Your name is " + name))
				} else {
					c.Send(domain.SuccessMessage("You don't have a name"))
				}
				return nil
			}
			return c.SetName(ctx, args[0])
		},
	}
}
