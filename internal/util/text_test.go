package util

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateUTF8(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "José", 10, "José"},
		{"cut inside a rune", "José", 4, "Jos"},
		{"cut on a boundary", "José", 5, "José"},
		{"already broken", "Jos\xc3", 10, "Jos"},
		{"zero", "José", 0, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TruncateUTF8(tc.in, tc.max))
		})
	}

	long := "x" + strings.Repeat("é", 1500)
	got := TruncateUTF8(long, 2000)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 2000)
	assert.Equal(t, 1999, len(got))
}
