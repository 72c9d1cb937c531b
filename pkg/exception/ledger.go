package exception

import "github.com/yanun0323/errors"

var (
	ErrTradeNotFound          = errors.New("ledger: trade not found")
	ErrTradeInvalidTransition = errors.New("ledger: invalid trade state transition")
	ErrTradeNoLegs            = errors.New("ledger: trade has no legs")
)
