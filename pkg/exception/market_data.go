package exception

import "github.com/yanun0323/errors"

var (
	ErrMarketDataUnavailable = errors.New("market data: unavailable")
	ErrMarketDataNoChain     = errors.New("market data: option chain unavailable")
	ErrMarketDataUnknownSym  = errors.New("market data: unknown symbol")
)
