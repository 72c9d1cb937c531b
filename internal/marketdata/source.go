package marketdata

import (
	"context"
	"time"

	"github.com/yanun0323/errors"

	"apolo/internal/schema"
	"apolo/pkg/exception"
)

// Quote is an underlying snapshot with its indicators.
type Quote struct {
	Symbol    string
	Price     float64
	IVRank    float64
	ADX       float64
	IV        float64
	Timestamp time.Time
}

// Source retrieves market snapshots. Implementations return exception.ErrMarketDataUnavailable
// style errors when a snapshot cannot be produced.
type Source interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
	Chain(ctx context.Context, symbol string) (schema.OptionChain, error)
}

type quotesOnly struct {
	Source
}

// QuotesOnly wraps src so every chain lookup fails. Evaluators then size from their
// percentage proxies.
func QuotesOnly(src Source) Source {
	return quotesOnly{Source: src}
}

func (quotesOnly) Chain(ctx context.Context, symbol string) (schema.OptionChain, error) {
	return schema.OptionChain{}, errors.Wrapf(exception.ErrMarketDataNoChain, "symbol: %s", symbol)
}
