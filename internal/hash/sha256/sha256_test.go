package sha256

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashMatchesPlainDigestForFoldedInput(t *testing.T) {
	t.Parallel()

	got, err := New().Hash([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)
}

func TestHashIgnoresWhitespaceLayout(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte("<tr>\n\t<td>Jan 5</td>\n</tr>"))
	require.NoError(t, err)
	b, err := h.Hash([]byte("  <tr> <td>Jan 5</td>   </tr>\n"))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := h.Hash([]byte("<tr><td>Jan 6</td></tr>"))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestHashEmptyContent(t *testing.T) {
	t.Parallel()

	a, err := New().Hash(nil)
	require.NoError(t, err)
	b, err := New().Hash([]byte(" \n\t "))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", a)
}
