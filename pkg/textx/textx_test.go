package textx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"control chars stripped", "he\x00llo\nwo\x7frld\t!", "hello\nworld\t!"},
		{"bom dropped", "\uFEFFhello", "hello"},
		{"nbsp becomes space", "a b", "a b"},
		{"trimmed", "  padded  ", "padded"},
		{"empty", "", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, c.want, SanitizeText(c.in))
		})
	}
}

func TestCollapseWhitespace(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a b c", CollapseWhitespace("  a\n\n b\t\tc "))
	assert.Equal(t, "", CollapseWhitespace("   "))
}
