package sqlguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  error
	}{
		{
			name:     "plain select",
			input:    "SELECT 1",
			expected: "SELECT 1",
		},
		{
			name:     "trailing semicolon stripped",
			input:    "SELECT * FROM schools;",
			expected: "SELECT * FROM schools",
		},
		{
			name:     "trailing semicolon with whitespace",
			input:    "SELECT 1;   ",
			expected: "SELECT 1",
		},
		{
			name:     "semicolon inside string literal",
			input:    "SELECT * FROM t WHERE note = 'a;b'",
			expected: "SELECT * FROM t WHERE note = 'a;b'",
		},
		{
			name:     "semicolon inside quoted identifier",
			input:    `SELECT * FROM "odd;name"`,
			expected: `SELECT * FROM "odd;name"`,
		},
		{
			name:    "two statements",
			input:   "SELECT 1; DROP TABLE schools",
			wantErr: ErrMultipleStatements,
		},
		{
			name:     "empty",
			input:    "   ",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEnsureReadOnly(t *testing.T) {
	assert.NoError(t, EnsureReadOnly("SELECT * FROM schools"))
	assert.NoError(t, EnsureReadOnly("  with t as (select 1) select * from t"))

	for _, q := range []string{
		"DROP TABLE schools",
		"DELETE FROM schools",
		"UPDATE schools SET name = 'x'",
		"INSERT INTO schools VALUES (1)",
		"PRAGMA writable_schema = 1",
	} {
		assert.ErrorIs(t, EnsureReadOnly(q), ErrNotReadOnly, q)
	}
}

func TestScreenLiterals(t *testing.T) {
	// Ordinary mapped constants pass.
	assert.Nil(t, ScreenLiterals("SELECT * FROM schools WHERE county = 'Alameda'"))
	assert.Nil(t, ScreenLiterals("SELECT COUNT(*) FROM t"))

	// A literal that is itself an injection payload is flagged.
	res := ScreenLiterals("SELECT * FROM t WHERE name = '1'' OR ''1''=''1'")
	require.NotNil(t, res)
	assert.True(t, res.IsSQLi)
	assert.NotEmpty(t, res.Fingerprint)
}

func TestStringLiterals(t *testing.T) {
	got := stringLiterals("SELECT 'a', 'O''Brien' FROM t WHERE x = 'c'")
	assert.Equal(t, []string{"a", "O'Brien", "c"}, got)
}
