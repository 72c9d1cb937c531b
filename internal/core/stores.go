package core

import (
	"context"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"apolo/internal/ledger"
	"apolo/internal/ops"
	"apolo/internal/state"
	"apolo/internal/store"
	"apolo/pkg/conn"
)

// Stores are the durable boundaries of the loop.
type Stores struct {
	Accounts state.Repository
	Trades   ledger.TradeStore

	client *conn.Client
}

// MemoryStores keeps everything in process memory.
func MemoryStores() Stores {
	return Stores{
		Accounts: state.NewMemoryRepository(),
		Trades:   ledger.NewMemoryTradeStore(),
	}
}

// OpenStores connects to the configured database, or returns memory stores when none is
// configured.
func OpenStores(ctx context.Context, loaded ops.Loaded) (Stores, error) {
	if loaded.Database == nil {
		logs.Infof("core: using in-memory stores")
		return MemoryStores(), nil
	}
	client, err := conn.New(*loaded.Database)
	if err != nil {
		return Stores{}, errors.Wrapf(err, "connect %s", conn.Redact(loaded.File.Database.URL))
	}
	db := client.DB().WithContext(ctx)
	if loaded.File.Database.AutoMigrate {
		if err := store.Migrate(db); err != nil {
			_ = client.Close()
			return Stores{}, err
		}
	}
	accounts, err := store.NewAccountRepository(client.DB())
	if err != nil {
		_ = client.Close()
		return Stores{}, err
	}
	trades, err := store.NewTradeRepository(client.DB())
	if err != nil {
		_ = client.Close()
		return Stores{}, err
	}
	logs.Infof("core: connected %s database %s", client.Driver(), conn.Redact(loaded.File.Database.URL))
	return Stores{Accounts: accounts, Trades: trades, client: client}, nil
}

// Close releases the database connection, if any.
func (s Stores) Close() error {
	return s.client.Close()
}
