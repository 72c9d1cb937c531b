package execution

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"

	"apolo/internal/bus"
	"apolo/internal/obs"
	"apolo/internal/schema"
	"apolo/pkg/exception"
)

// HandlerName identifies the execution stage on the bus.
const HandlerName = "execution"

// DefaultCommission is charged per filled contract.
const DefaultCommission = 1.05

// Mode selects the execution venue.
type Mode string

const (
	ModePaper Mode = "PAPER"
	ModeLive  Mode = "LIVE"
)

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(s))); m {
	case ModePaper, ModeLive:
		return m, nil
	default:
		return "", errors.Wrapf(exception.ErrOrderUnsupportedMode, "mode: %s", s)
	}
}

// Executor turns OrderRequest events into fills.
type Executor interface {
	Mode() Mode
	OnOrderRequest(ctx context.Context, e schema.Event) error
}

// Config wires an executor.
type Config struct {
	Bus     bus.Broker
	Metrics *obs.Metrics

	// CommissionPerContract defaults to DefaultCommission.
	CommissionPerContract float64
	Now                   func() time.Time
	NewID                 func() string
}

func (c *Config) defaults() {
	if c.CommissionPerContract <= 0 {
		c.CommissionPerContract = DefaultCommission
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
}

// New creates the executor for mode and subscribes it to order requests. Live mode is
// declared but not implemented and fails here so a misconfigured binary stops at startup.
func New(mode Mode, cfg Config) (Executor, error) {
	switch mode {
	case ModePaper:
		return NewPaper(cfg)
	case ModeLive:
		return nil, exception.ErrLiveExecutionNotImplemented
	default:
		return nil, errors.Wrapf(exception.ErrOrderUnsupportedMode, "mode: %s", mode)
	}
}
