package title_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gitlab.com/rangulvers/wikigraph/internal/title"
)

func TestNormalizeIdempotent(t *testing.T) {
	cases := []string{"Python (programming language)", "python_(programming_LANGUAGE)", "  Go  ", "already normalized"}
	for _, c := range cases {
		once := title.Normalize(c)
		twice := title.Normalize(once)
		assert.Equal(t, once, twice)
	}
}

func TestNormalizeUnderscoreSpaceEquivalence(t *testing.T) {
	assert.Equal(t, title.Normalize("New_York_City"), title.Normalize("New York City"))
	assert.True(t, title.Equal("New_York_City", "new york city"))
}

func TestEqualCaseInsensitive(t *testing.T) {
	assert.True(t, title.Equal("Python (programming language)", "python (Programming Language)"))
	assert.False(t, title.Equal("Python", "Java"))
}
