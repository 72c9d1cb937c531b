package execution

import (
	"context"

	"github.com/yanun0323/errors"

	"apolo/internal/schema"
	"apolo/pkg/exception"
)

// Live is the broker-backed executor. No broker adapter exists yet, so every call fails.
type Live struct{}

func (Live) Mode() Mode {
	return ModeLive
}

func (Live) OnOrderRequest(ctx context.Context, e schema.Event) error {
	return errors.Wrapf(exception.ErrLiveExecutionNotImplemented, "symbol: %v", e.Payload[schema.KeySymbol])
}
