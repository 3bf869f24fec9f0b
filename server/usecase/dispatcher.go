package usecase

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ponyo877/relaychat/server/domain"
	"go.uber.org/zap"
)

// Handler runs one command for c. A returned error is reported to the client
// as an ERROR notification.
type Handler func(ctx context.Context, c *Connection, args ...string) error

type Commands map[string]Handler

type Dispatcher struct {
	commands Commands
	logger   *zap.Logger
	metrics  *Metrics
}

func NewDispatcher(cfg domain.Config, logger *zap.Logger, metrics *Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	d := &Dispatcher{
		commands: make(Commands),
		logger:   logger,
		metrics:  metrics,
	}
	d.Register(IdentityCommands())
	d.Register(RoomCommands())
	d.Register(UtilityCommands(cfg, d.Keywords))
	return d
}

// Register adds every command in group, keyed by its uppercased keyword.
func (d *Dispatcher) Register(group Commands) {
	for keyword, h := range group {
		d.commands[strings.ToUpper(keyword)] = h
	}
}

func (d *Dispatcher) Keywords() []string {
	return slices.Sorted(maps.Keys(d.commands))
}

func (d *Dispatcher) Dispatch(ctx context.Context, c *Connection, line *domain.Line) {
	h, ok := d.commands[line.Keyword()]
	if !ok {
		c.Send(domain.ErrorMessage(domain.Message(domain.ErrUnknownCommand)))
		return
	}

	err := d.invoke(ctx, h, c, line.Params())
	if err == nil {
		return
	}
	d.metrics.incr(metricCommandErrors, 1)
	if !domain.IsProtocolError(err) {
		d.logger.Error("command failed",
			zap.String("keyword", line.Keyword()),
			zap.String("conn", c.ID()),
			zap.Error(err),
		)
	}
	c.Send(domain.ErrorMessage(domain.Message(err)))
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, c *Connection, args []string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in handler: %v", p)
		}
	}()
	return h(ctx, c, args...)
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
