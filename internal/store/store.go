// Package store persists the card catalog, extracted values, and run logs.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cardscope/internal/config"
	"github.com/sells-group/cardscope/internal/model"
)

// ErrNotFound is wrapped by lookups and updates that match no row.
var ErrNotFound = eris.New("not found")

// ValueFilter narrows ListValues. Empty slices match everything.
type ValueFilter struct {
	UserID            int64
	ProductIDs        []int64
	CharacteristicIDs []int64
	BatchTag          string
}

// RunLogFilter narrows ListRunLogs.
type RunLogFilter struct {
	UserID int64
	Status model.RunStatus
	Limit  int
	Offset int
}

// Store defines the persistence interface for catalog, values, and runs.
type Store interface {
	// Banks
	CreateBank(ctx context.Context, name, url string) (*model.Bank, error)
	GetBanks(ctx context.Context, ids []int64) ([]model.Bank, error)
	FindBankByName(ctx context.Context, name string) (*model.Bank, error)

	// Products. GetProducts returns rows in the order of ids.
	CreateProduct(ctx context.Context, p model.Product) (*model.Product, error)
	GetProducts(ctx context.Context, ids []int64) ([]model.Product, error)

	// Characteristics
	CreateCharacteristic(ctx context.Context, c model.Characteristic) (*model.Characteristic, error)
	UpsertCharacteristics(ctx context.Context, userID int64, defs []model.SeedCharacteristic) (int64, error)
	GetCharacteristics(ctx context.Context, ids []int64) ([]model.Characteristic, error)
	ListCharacteristics(ctx context.Context, userID int64) ([]model.Characteristic, error)

	// Values are append-only.
	AppendValues(ctx context.Context, values []model.Value) error
	ListValues(ctx context.Context, filter ValueFilter) ([]model.Value, error)

	// Run logs
	CreateRunLog(ctx context.Context, log *model.RunLog) error
	UpdateRunLog(ctx context.Context, log *model.RunLog) error
	GetRunLog(ctx context.Context, id int64) (*model.RunLog, error)
	ListRunLogs(ctx context.Context, filter RunLogFilter) ([]model.RunLog, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "cardscope.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	default:
		return nil, eris.Errorf("store: unsupported driver: %s", cfg.Driver)
	}
}

// inIDOrder reorders rows to follow ids, dropping ids with no row.
func inIDOrder[T any](ids []int64, rows []T, id func(T) int64) []T {
	byID := make(map[int64]T, len(rows))
	for _, r := range rows {
		byID[id(r)] = r
	}
	out := make([]T, 0, len(ids))
	for _, i := range ids {
		if r, ok := byID[i]; ok {
			out = append(out, r)
		}
	}
	return out
}

func seedRows(userID int64, defs []model.SeedCharacteristic) []model.Characteristic {
	out := make([]model.Characteristic, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if d.Name == "" || seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		out = append(out, model.Characteristic{
			UserID:      userID,
			Name:        d.Name,
			Description: d.Description,
			ValueHint:   d.ValueHint,
		})
	}
	return out
}
