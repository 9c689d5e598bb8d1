package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubcategories_Embedded(t *testing.T) {
	items, err := Subcategories()
	require.NoError(t, err)
	require.NotEmpty(t, items)

	assert.Equal(t, "top-recruiter", items[0].ID)
	assert.Equal(t, "Top Recruiter", items[0].Name)
	assert.Equal(t, "role-specific", items[0].CategoryGroup)
}

func TestParseSubcategories_Rejects(t *testing.T) {
	_, err := ParseSubcategories([]byte("subcategories:\n  - id: a\n    name: A\n  - id: a\n    name: B\n"))
	assert.ErrorContains(t, err, "listed twice")

	_, err = ParseSubcategories([]byte("subcategories:\n  - name: A\n"))
	assert.ErrorContains(t, err, "required")

	_, err = ParseSubcategories([]byte("subcategories: [::"))
	assert.Error(t, err)
}
