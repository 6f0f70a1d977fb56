package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/cardscope/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas are applied by the driver to every pooled connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

// sqliteDSN appends the connection pragmas to dsn as _pragma parameters.
func sqliteDSN(dsn string) string {
	params := make([]string, 0, len(sqlitePragmas))
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+p)
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS banks (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	url        TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS products (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	set_id     INTEGER NOT NULL DEFAULT 0,
	bank_id    INTEGER NOT NULL REFERENCES banks(id),
	name       TEXT NOT NULL,
	url        TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS characteristics (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     INTEGER NOT NULL DEFAULT 0,
	set_id      INTEGER,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	value_hint  TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (user_id, name)
);

CREATE TABLE IF NOT EXISTS card_values (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id           INTEGER NOT NULL DEFAULT 0,
	product_id        INTEGER NOT NULL REFERENCES products(id),
	characteristic_id INTEGER NOT NULL REFERENCES characteristics(id),
	value             TEXT NOT NULL,
	batch_tag         TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_logs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     INTEGER NOT NULL DEFAULT 0,
	tag         TEXT NOT NULL UNIQUE,
	action      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'new',
	tokens_used INTEGER NOT NULL DEFAULT 0,
	message     TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_products_bank_id ON products(bank_id);
CREATE INDEX IF NOT EXISTS idx_card_values_cell ON card_values(user_id, product_id, characteristic_id, created_at);
CREATE INDEX IF NOT EXISTS idx_card_values_batch_tag ON card_values(batch_tag);
CREATE INDEX IF NOT EXISTS idx_run_logs_user_status ON run_logs(user_id, status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Banks ---

func (s *SQLiteStore) CreateBank(ctx context.Context, name, url string) (*model.Bank, error) {
	b := model.Bank{Name: strings.TrimSpace(name), URL: url, CreatedAt: time.Now().UTC()}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO banks (name, url, created_at) VALUES (?, ?, ?)`,
		b.Name, b.URL, b.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert bank %q", b.Name)
	}
	b.ID, err = res.LastInsertId()
	return &b, eris.Wrap(err, "sqlite: bank id")
}

func (s *SQLiteStore) GetBanks(ctx context.Context, ids []int64) ([]model.Bank, error) {
	query := `SELECT id, name, url, created_at FROM banks`
	var args []any
	if len(ids) > 0 {
		query += ` WHERE id IN (` + placeholders(len(ids)) + `)`
		args = int64Args(ids)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get banks")
	}
	defer rows.Close()

	var banks []model.Bank
	for rows.Next() {
		var b model.Bank
		if err := rows.Scan(&b.ID, &b.Name, &b.URL, &b.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bank")
		}
		banks = append(banks, b)
	}
	return banks, eris.Wrap(rows.Err(), "sqlite: get banks iterate")
}

func (s *SQLiteStore) FindBankByName(ctx context.Context, name string) (*model.Bank, error) {
	var b model.Bank
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, url, created_at FROM banks WHERE name = ?`, strings.TrimSpace(name),
	).Scan(&b.ID, &b.Name, &b.URL, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find bank %q", name)
	}
	return &b, nil
}

// --- Products ---

func (s *SQLiteStore) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	p.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO products (set_id, bank_id, name, url, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.SetID, p.BankID, p.Name, p.URL, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert product %q", p.Name)
	}
	p.ID, err = res.LastInsertId()
	return &p, eris.Wrap(err, "sqlite: product id")
}

func (s *SQLiteStore) GetProducts(ctx context.Context, ids []int64) ([]model.Product, error) {
	query := `SELECT id, set_id, bank_id, name, url, created_at FROM products`
	var args []any
	if len(ids) > 0 {
		query += ` WHERE id IN (` + placeholders(len(ids)) + `)`
		args = int64Args(ids)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get products")
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.SetID, &p.BankID, &p.Name, &p.URL, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: get products iterate")
	}
	if len(ids) == 0 {
		return products, nil
	}
	return inIDOrder(ids, products, func(p model.Product) int64 { return p.ID }), nil
}

// --- Characteristics ---

func (s *SQLiteStore) CreateCharacteristic(ctx context.Context, c model.Characteristic) (*model.Characteristic, error) {
	c.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO characteristics (user_id, set_id, name, description, value_hint, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.UserID, c.SetID, c.Name, c.Description, c.ValueHint, c.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert characteristic %q", c.Name)
	}
	c.ID, err = res.LastInsertId()
	return &c, eris.Wrap(err, "sqlite: characteristic id")
}

// UpsertCharacteristics merges seed definitions in one transaction.
func (s *SQLiteStore) UpsertCharacteristics(ctx context.Context, userID int64, defs []model.SeedCharacteristic) (int64, error) {
	chars := seedRows(userID, defs)
	if len(chars) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert characteristics: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO characteristics (user_id, name, description, value_hint, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, name) DO UPDATE SET description = excluded.description, value_hint = excluded.value_hint`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert characteristics: prepare")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var total int64
	for _, c := range chars {
		res, err := stmt.ExecContext(ctx, c.UserID, c.Name, c.Description, c.ValueHint, now)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert characteristic %q", c.Name)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert characteristics: commit")
	}
	return total, nil
}

func (s *SQLiteStore) GetCharacteristics(ctx context.Context, ids []int64) ([]model.Characteristic, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	chars, err := s.queryCharacteristics(ctx,
		`SELECT `+characteristicColumns+` FROM characteristics WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	return inIDOrder(ids, chars, func(c model.Characteristic) int64 { return c.ID }), nil
}

func (s *SQLiteStore) ListCharacteristics(ctx context.Context, userID int64) ([]model.Characteristic, error) {
	return s.queryCharacteristics(ctx,
		`SELECT `+characteristicColumns+` FROM characteristics WHERE user_id IN (0, ?) ORDER BY id`, userID)
}

func (s *SQLiteStore) queryCharacteristics(ctx context.Context, query string, args ...any) ([]model.Characteristic, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query characteristics")
	}
	defer rows.Close()

	var chars []model.Characteristic
	for rows.Next() {
		var c model.Characteristic
		if err := rows.Scan(&c.ID, &c.UserID, &c.SetID, &c.Name, &c.Description, &c.ValueHint, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan characteristic")
		}
		chars = append(chars, c)
	}
	return chars, eris.Wrap(rows.Err(), "sqlite: query characteristics iterate")
}

// --- Values ---

func (s *SQLiteStore) AppendValues(ctx context.Context, values []model.Value) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: append values: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO card_values (user_id, product_id, characteristic_id, value, batch_tag, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: append values: prepare")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, v := range values {
		created := v.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx, v.UserID, v.ProductID, v.CharacteristicID, v.Value, v.BatchTag, created); err != nil {
			return eris.Wrapf(err, "sqlite: append value for product %d", v.ProductID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: append values: commit")
}

func (s *SQLiteStore) ListValues(ctx context.Context, filter ValueFilter) ([]model.Value, error) {
	query := `SELECT id, user_id, product_id, characteristic_id, value, batch_tag, created_at FROM card_values WHERE user_id = ?`
	args := []any{filter.UserID}
	if len(filter.ProductIDs) > 0 {
		query += ` AND product_id IN (` + placeholders(len(filter.ProductIDs)) + `)`
		args = append(args, int64Args(filter.ProductIDs)...)
	}
	if len(filter.CharacteristicIDs) > 0 {
		query += ` AND characteristic_id IN (` + placeholders(len(filter.CharacteristicIDs)) + `)`
		args = append(args, int64Args(filter.CharacteristicIDs)...)
	}
	if filter.BatchTag != "" {
		query += ` AND batch_tag = ?`
		args = append(args, filter.BatchTag)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list values")
	}
	defer rows.Close()

	var values []model.Value
	for rows.Next() {
		var v model.Value
		if err := rows.Scan(&v.ID, &v.UserID, &v.ProductID, &v.CharacteristicID, &v.Value, &v.BatchTag, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan value")
		}
		values = append(values, v)
	}
	return values, eris.Wrap(rows.Err(), "sqlite: list values iterate")
}

// --- Run logs ---

func (s *SQLiteStore) CreateRunLog(ctx context.Context, log *model.RunLog) error {
	now := time.Now().UTC()
	if log.Status == "" {
		log.Status = model.RunStatusNew
	}
	log.CreatedAt, log.UpdatedAt = now, now
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO run_logs (user_id, tag, action, status, tokens_used, message, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.UserID, log.Tag, log.Action, string(log.Status), log.TokensUsed, log.Message, log.CreatedAt, log.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert run log %s", log.Tag)
	}
	log.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: run log id")
}

func (s *SQLiteStore) UpdateRunLog(ctx context.Context, log *model.RunLog) error {
	if log.UpdatedAt.IsZero() {
		log.UpdatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE run_logs SET status = ?, tokens_used = ?, message = ?, updated_at = ? WHERE id = ?`,
		string(log.Status), log.TokensUsed, log.Message, log.UpdatedAt, log.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run log %d", log.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: run log %d", log.ID)
	}
	return nil
}

func (s *SQLiteStore) GetRunLog(ctx context.Context, id int64) (*model.RunLog, error) {
	r, err := scanRunLog(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, tag, action, status, tokens_used, message, created_at, updated_at FROM run_logs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run log %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run log %d", id)
	}
	return r, nil
}

func (s *SQLiteStore) ListRunLogs(ctx context.Context, filter RunLogFilter) ([]model.RunLog, error) {
	query := `SELECT id, user_id, tag, action, status, tokens_used, message, created_at, updated_at FROM run_logs WHERE user_id = ?`
	args := []any{filter.UserID}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list run logs")
	}
	defer rows.Close()

	var logs []model.RunLog
	for rows.Next() {
		r, err := scanRunLog(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run log")
		}
		logs = append(logs, *r)
	}
	return logs, eris.Wrap(rows.Err(), "sqlite: list run logs iterate")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
