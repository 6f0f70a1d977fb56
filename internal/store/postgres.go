package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cardscope/internal/db"
	"github.com/sells-group/cardscope/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

const (
	sqlInsertRunLog = `INSERT INTO run_logs (user_id, tag, action, status, tokens_used, message, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	sqlUpdateRunLog = `UPDATE run_logs SET status = $1, tokens_used = $2, message = $3, updated_at = $4 WHERE id = $5`
	sqlGetRunLog    = `SELECT id, user_id, tag, action, status, tokens_used, message, created_at, updated_at FROM run_logs WHERE id = $1`
	sqlFindBank     = `SELECT id, name, url, created_at FROM banks WHERE name = $1`
)

// preparedStatements are prepared on each new connection; the batch runner
// hits them once per product.
var preparedStatements = map[string]string{
	"insert_run_log": sqlInsertRunLog,
	"update_run_log": sqlUpdateRunLog,
	"get_run_log":    sqlGetRunLog,
	"find_bank":      sqlFindBank,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS banks (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	url        TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS products (
	id         BIGSERIAL PRIMARY KEY,
	set_id     BIGINT NOT NULL DEFAULT 0,
	bank_id    BIGINT NOT NULL REFERENCES banks(id),
	name       TEXT NOT NULL,
	url        TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS characteristics (
	id          BIGSERIAL PRIMARY KEY,
	user_id     BIGINT NOT NULL DEFAULT 0,
	set_id      BIGINT,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	value_hint  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, name)
);

CREATE TABLE IF NOT EXISTS card_values (
	id                BIGSERIAL PRIMARY KEY,
	user_id           BIGINT NOT NULL DEFAULT 0,
	product_id        BIGINT NOT NULL REFERENCES products(id),
	characteristic_id BIGINT NOT NULL REFERENCES characteristics(id),
	value             TEXT NOT NULL,
	batch_tag         TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_logs (
	id          BIGSERIAL PRIMARY KEY,
	user_id     BIGINT NOT NULL DEFAULT 0,
	tag         TEXT NOT NULL UNIQUE,
	action      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'new',
	tokens_used INTEGER NOT NULL DEFAULT 0,
	message     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_products_bank_id ON products(bank_id);
CREATE INDEX IF NOT EXISTS idx_card_values_cell ON card_values(user_id, product_id, characteristic_id, created_at);
CREATE INDEX IF NOT EXISTS idx_card_values_batch_tag ON card_values(batch_tag);
CREATE INDEX IF NOT EXISTS idx_run_logs_user_status ON run_logs(user_id, status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Banks ---

func (s *PostgresStore) CreateBank(ctx context.Context, name, url string) (*model.Bank, error) {
	b := model.Bank{Name: strings.TrimSpace(name), URL: url, CreatedAt: time.Now().UTC()}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO banks (name, url, created_at) VALUES ($1, $2, $3) RETURNING id`,
		b.Name, b.URL, b.CreatedAt,
	).Scan(&b.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert bank %q", b.Name)
	}
	return &b, nil
}

func (s *PostgresStore) GetBanks(ctx context.Context, ids []int64) ([]model.Bank, error) {
	query := `SELECT id, name, url, created_at FROM banks`
	var args []any
	if len(ids) > 0 {
		query += ` WHERE id = ANY($1)`
		args = append(args, ids)
	}
	query += ` ORDER BY name`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get banks")
	}
	defer rows.Close()

	var banks []model.Bank
	for rows.Next() {
		var b model.Bank
		if err := rows.Scan(&b.ID, &b.Name, &b.URL, &b.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan bank")
		}
		banks = append(banks, b)
	}
	return banks, eris.Wrap(rows.Err(), "postgres: get banks iterate")
}

func (s *PostgresStore) FindBankByName(ctx context.Context, name string) (*model.Bank, error) {
	var b model.Bank
	err := s.pool.QueryRow(ctx, sqlFindBank, strings.TrimSpace(name)).Scan(&b.ID, &b.Name, &b.URL, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find bank %q", name)
	}
	return &b, nil
}

// --- Products ---

func (s *PostgresStore) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	p.CreatedAt = time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO products (set_id, bank_id, name, url, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.SetID, p.BankID, p.Name, p.URL, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert product %q", p.Name)
	}
	return &p, nil
}

func (s *PostgresStore) GetProducts(ctx context.Context, ids []int64) ([]model.Product, error) {
	query := `SELECT id, set_id, bank_id, name, url, created_at FROM products`
	var args []any
	if len(ids) > 0 {
		query += ` WHERE id = ANY($1)`
		args = append(args, ids)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get products")
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.SetID, &p.BankID, &p.Name, &p.URL, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: get products iterate")
	}
	if len(ids) == 0 {
		return products, nil
	}
	return inIDOrder(ids, products, func(p model.Product) int64 { return p.ID }), nil
}

// --- Characteristics ---

const characteristicColumns = `id, user_id, set_id, name, description, value_hint, created_at`

func (s *PostgresStore) CreateCharacteristic(ctx context.Context, c model.Characteristic) (*model.Characteristic, error) {
	c.CreatedAt = time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO characteristics (user_id, set_id, name, description, value_hint, created_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		c.UserID, c.SetID, c.Name, c.Description, c.ValueHint, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert characteristic %q", c.Name)
	}
	return &c, nil
}

// UpsertCharacteristics merges seed definitions into the user's global
// characteristics, refreshing description and hint for existing names.
func (s *PostgresStore) UpsertCharacteristics(ctx context.Context, userID int64, defs []model.SeedCharacteristic) (int64, error) {
	now := time.Now().UTC()
	var rows [][]any
	for _, c := range seedRows(userID, defs) {
		rows = append(rows, []any{c.UserID, c.Name, c.Description, c.ValueHint, now})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "characteristics",
		Columns:      []string{"user_id", "name", "description", "value_hint", "created_at"},
		ConflictKeys: []string{"user_id", "name"},
		UpdateCols:   []string{"description", "value_hint"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert characteristics")
}

func (s *PostgresStore) GetCharacteristics(ctx context.Context, ids []int64) ([]model.Characteristic, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	chars, err := s.queryCharacteristics(ctx,
		`SELECT `+characteristicColumns+` FROM characteristics WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return inIDOrder(ids, chars, func(c model.Characteristic) int64 { return c.ID }), nil
}

// ListCharacteristics returns the user's characteristics plus the shared
// ones owned by user 0.
func (s *PostgresStore) ListCharacteristics(ctx context.Context, userID int64) ([]model.Characteristic, error) {
	return s.queryCharacteristics(ctx,
		`SELECT `+characteristicColumns+` FROM characteristics WHERE user_id IN (0, $1) ORDER BY id`, userID)
}

func (s *PostgresStore) queryCharacteristics(ctx context.Context, query string, args ...any) ([]model.Characteristic, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query characteristics")
	}
	defer rows.Close()

	var chars []model.Characteristic
	for rows.Next() {
		var c model.Characteristic
		if err := rows.Scan(&c.ID, &c.UserID, &c.SetID, &c.Name, &c.Description, &c.ValueHint, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan characteristic")
		}
		chars = append(chars, c)
	}
	return chars, eris.Wrap(rows.Err(), "postgres: query characteristics iterate")
}

// --- Values ---

var valueColumns = []string{"user_id", "product_id", "characteristic_id", "value", "batch_tag", "created_at"}

// AppendValues writes one product's values over COPY.
func (s *PostgresStore) AppendValues(ctx context.Context, values []model.Value) error {
	now := time.Now().UTC()
	rows := make([][]any, len(values))
	for i, v := range values {
		created := v.CreatedAt
		if created.IsZero() {
			created = now
		}
		rows[i] = []any{v.UserID, v.ProductID, v.CharacteristicID, v.Value, v.BatchTag, created}
	}
	_, err := db.CopyFrom(ctx, s.pool, "card_values", valueColumns, rows)
	return eris.Wrap(err, "postgres: append values")
}

func (s *PostgresStore) ListValues(ctx context.Context, filter ValueFilter) ([]model.Value, error) {
	query := `SELECT id, user_id, product_id, characteristic_id, value, batch_tag, created_at FROM card_values WHERE user_id = $1`
	args := []any{filter.UserID}
	if len(filter.ProductIDs) > 0 {
		args = append(args, filter.ProductIDs)
		query += fmt.Sprintf(` AND product_id = ANY($%d)`, len(args))
	}
	if len(filter.CharacteristicIDs) > 0 {
		args = append(args, filter.CharacteristicIDs)
		query += fmt.Sprintf(` AND characteristic_id = ANY($%d)`, len(args))
	}
	if filter.BatchTag != "" {
		args = append(args, filter.BatchTag)
		query += fmt.Sprintf(` AND batch_tag = $%d`, len(args))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list values")
	}
	defer rows.Close()

	var values []model.Value
	for rows.Next() {
		var v model.Value
		if err := rows.Scan(&v.ID, &v.UserID, &v.ProductID, &v.CharacteristicID, &v.Value, &v.BatchTag, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan value")
		}
		values = append(values, v)
	}
	return values, eris.Wrap(rows.Err(), "postgres: list values iterate")
}

// --- Run logs ---

func (s *PostgresStore) CreateRunLog(ctx context.Context, log *model.RunLog) error {
	now := time.Now().UTC()
	if log.Status == "" {
		log.Status = model.RunStatusNew
	}
	log.CreatedAt, log.UpdatedAt = now, now
	err := s.pool.QueryRow(ctx, sqlInsertRunLog,
		log.UserID, log.Tag, log.Action, string(log.Status), log.TokensUsed, log.Message, log.CreatedAt, log.UpdatedAt,
	).Scan(&log.ID)
	return eris.Wrapf(err, "postgres: insert run log %s", log.Tag)
}

func (s *PostgresStore) UpdateRunLog(ctx context.Context, log *model.RunLog) error {
	if log.UpdatedAt.IsZero() {
		log.UpdatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx, sqlUpdateRunLog,
		string(log.Status), log.TokensUsed, log.Message, log.UpdatedAt, log.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run log %d", log.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run log %d", log.ID)
	}
	return nil
}

func (s *PostgresStore) GetRunLog(ctx context.Context, id int64) (*model.RunLog, error) {
	r, err := scanRunLog(s.pool.QueryRow(ctx, sqlGetRunLog, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run log %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run log %d", id)
	}
	return r, nil
}

func (s *PostgresStore) ListRunLogs(ctx context.Context, filter RunLogFilter) ([]model.RunLog, error) {
	query := `SELECT id, user_id, tag, action, status, tokens_used, message, created_at, updated_at FROM run_logs WHERE user_id = $1`
	args := []any{filter.UserID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list run logs")
	}
	defer rows.Close()

	var logs []model.RunLog
	for rows.Next() {
		r, err := scanRunLog(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run log")
		}
		logs = append(logs, *r)
	}
	return logs, eris.Wrap(rows.Err(), "postgres: list run logs iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRunLog(row scannable) (*model.RunLog, error) {
	var r model.RunLog
	var status string
	if err := row.Scan(&r.ID, &r.UserID, &r.Tag, &r.Action, &status, &r.TokensUsed, &r.Message, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	return &r, nil
}
