package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "characteristics",
		Columns:      []string{"user_id", "name"},
		ConflictKeys: []string{"user_id", "name"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "characteristics",
		ConflictKeys: []string{"name"},
	}, [][]any{{"type"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "characteristics",
		Columns: []string{"name"},
	}, [][]any{{"type"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"user_id", "name", "description"}
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_characteristics" \(LIKE "characteristics" INCLUDING DEFAULTS\)`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_characteristics"}, cols).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("user_id", "name"\) DO UPDATE SET "description" = EXCLUDED."description"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "characteristics",
		Columns:      cols,
		ConflictKeys: []string{"user_id", "name"},
	}, [][]any{{int64(0), "type", "Тип карты"}, {int64(0), "currency", "Валюта"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_AllKeysDoNothing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_banks"}, []string{"name"}).WillReturnResult(1)
	mock.ExpectExec(`ON CONFLICT \("name"\) DO NOTHING`).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "banks",
		Columns:      []string{"name"},
		ConflictKeys: []string{"name"},
	}, [][]any{{"Приорбанк"}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_MergeFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_characteristics"}, []string{"user_id", "name"}).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "characteristics"`).WillReturnError(fmt.Errorf("constraint missing"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "characteristics",
		Columns:      []string{"user_id", "name"},
		ConflictKeys: []string{"user_id", "name"},
	}, [][]any{{int64(0), "type"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge into characteristics")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"banks", `"banks"`},
		{"public.card_values", `"public"."card_values"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"user_id", "name", "value_hint"`, quoteAndJoin([]string{"user_id", "name", "value_hint"}))
}

func TestNonKeyColumns(t *testing.T) {
	assert.Equal(t, []string{"description", "value_hint"},
		nonKeyColumns([]string{"user_id", "name", "description", "value_hint"}, []string{"user_id", "name"}))
	assert.Nil(t, nonKeyColumns([]string{"name"}, []string{"name"}))
}
