package usecase

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ponyo877/relaychat/server/domain"
)

const (
	qrEndpoint    = "https://api.qrserver.com/v1/create-qr-code/"
	defaultQRSize = 150
	maxQRSize     = 1000
)

// UtilityCommands needs the keyword list for HELP, which is only complete
// once every group is registered.
func UtilityCommands(cfg domain.Config, keywords func() []string) Commands {
	return Commands{
		"ping": func(ctx context.Context, c *Connection, args ...string) error {
			c.Send(domain.PongMessage())
			return nil
		},
		"help": func(ctx context.Context, c *Connection, args ...string) error {
			c.Send(domain.SuccessMessage("Commands: " + strings.Join(keywords(), ", ")))
			return nil
		},
		"qr": func(ctx context.Context, c *Connection, args ...string) error {
			room, ok := c.Room()
			if !ok {
				return domain.ErrNotInRoom
			}
			size := defaultQRSize
			if raw := arg(args, 0); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n <= 0 || n > maxQRSize {
					return domain.Errorf(domain.ErrInvalidArgs, "QR size must be between 1 and %d", maxQRSize)
				}
				size = n
			}
			link := fmt.Sprintf("%s?size=%dx%d&data=%s", qrEndpoint, size, size, url.QueryEscape(cfg.RoomURL(room)))
			c.Send(domain.QRMessage(link))
			return nil
		},
		"link": func(ctx context.Context, c *Connection, args ...string) error {
			room, ok := c.Room()
			if !ok {
				return domain.ErrNotInRoom
			}
			c.Send(domain.SuccessMessage(cfg.RoomURL(room)))
			return nil
		},
	}
}
