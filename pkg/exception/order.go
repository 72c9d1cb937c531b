package exception

import "github.com/yanun0323/errors"

var (
	ErrOrderInvalidQuantity        = errors.New("order: quantity must be >= 1")
	ErrOrderInvalidPrice           = errors.New("order: invalid price")
	ErrOrderUnsupportedType        = errors.New("order: unsupported type")
	ErrOrderUnsupportedMode        = errors.New("order: unsupported execution mode")
	ErrLiveExecutionNotImplemented = errors.New("order: live execution is not implemented")
)
