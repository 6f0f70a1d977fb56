package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseCharacteristics(t *testing.T) {
	chars := BaseCharacteristics()
	require.Len(t, chars, 11)
	assert.Equal(t, "type", chars[0].Name)
	assert.Equal(t, "additional", chars[10].Name)

	// Returned slice is a copy.
	chars[0].Name = "mutated"
	assert.Equal(t, "type", BaseCharacteristics()[0].Name)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Обслуживание", DisplayName("maintenance_cost"))
	assert.Equal(t, "% на остаток", DisplayName("interest_rate"))
	assert.Equal(t, "cashback", DisplayName("cashback"))
}

func TestLoadCharacteristics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chars.yaml")
	doc := `
characteristics:
  - name: cashback
    description: Кэшбэк
    value_hint: "Например: 1 %"
  - name: overdraft
    description: Овердрафт
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	chars, err := LoadCharacteristics(path)
	require.NoError(t, err)
	require.Len(t, chars, 2)
	assert.Equal(t, "cashback", chars[0].Name)
	assert.Equal(t, "Например: 1 %", chars[0].ValueHint)
	assert.Equal(t, "overdraft", chars[1].Name)
	assert.Empty(t, chars[1].ValueHint)
}

func TestLoadCharacteristics_MissingName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chars.yaml")
	require.NoError(t, os.WriteFile(path, []byte("characteristics:\n  - description: x\n"), 0o644))

	_, err := LoadCharacteristics(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name")
}

func TestLoadCharacteristics_MissingFile(t *testing.T) {
	_, err := LoadCharacteristics(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read file")
}
