package sanitize_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docvault/internal/sanitize"
)

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase passthrough", "tenant_123", "tenant_123"},
		{"uppercase folded", "User_2abCdEf", "user_2abcdef"},
		{"specials become underscores", "My Tenant!", "my_tenant"},
		{"dashes become underscores", "acme-corp", "acme_corp"},
		{"runs collapsed", "a---b___c", "a_b_c"},
		{"edges trimmed", "__tenant__", "tenant"},
		{"empty input", "", "default"},
		{"all invalid", "!!!", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitize.Identifier(tt.input))
		})
	}
}

func TestIdentifierLongInput(t *testing.T) {
	long := strings.Repeat("a", 100)
	got := sanitize.Identifier(long)

	assert.Len(t, got, sanitize.MaxIdentifierLength)
	assert.Contains(t, got, "_")

	// Distinct long inputs must not collapse to the same identifier.
	other := sanitize.Identifier(strings.Repeat("a", 99) + "b")
	assert.NotEqual(t, got, other)

	// Same input is stable.
	assert.Equal(t, got, sanitize.Identifier(long))
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "report.pdf", "report.pdf"},
		{"path stripped", "../../etc/passwd.txt", "passwd.txt"},
		{"specials replaced", "my file (v2).txt", "my_file_v2.txt"},
		{"no underscore left before extension", "draft !.pdf", "draft.pdf"},
		{"no underscore left after dot", "notes. final.txt", "notes.final.txt"},
		{"spaces collapsed", "a   b.md", "a_b.md"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sanitize.Filename(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilenameRejected(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"dot", "."},
		{"dotdot", ".."},
		{"no extension", "README"},
		{"only specials", "!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sanitize.Filename(tt.input)
			require.ErrorIs(t, err, sanitize.ErrInvalidFilename)
		})
	}
}

func TestFilenameLong(t *testing.T) {
	long := strings.Repeat("a", 300) + ".txt"
	got, err := sanitize.Filename(long)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got), sanitize.MaxFilenameLength)
	assert.True(t, strings.HasSuffix(got, ".txt"))
}

func TestValidateTenantID(t *testing.T) {
	valid := []string{"tenant-a", "user_123", "A1", strings.Repeat("x", 255)}
	for _, id := range valid {
		assert.NoError(t, sanitize.ValidateTenantID(id), id)
	}

	invalid := []string{
		"",
		"../escape",
		"a/b",
		`a\b`,
		"tenant..x",
		"spaces here",
		"emojié",
		strings.Repeat("x", 256),
	}
	for _, id := range invalid {
		assert.ErrorIs(t, sanitize.ValidateTenantID(id), sanitize.ErrInvalidTenantID, id)
	}
}
