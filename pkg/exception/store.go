package exception

import "github.com/yanun0323/errors"

var (
	ErrStoreUnsupportedDSN = errors.New("store: unsupported database url")
	ErrStoreNilDB          = errors.New("store: nil database")
)
