package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePairs(t *testing.T) {
	values, err := parsePairs([]string{"scene=default", "path = a=b"}, "=")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"scene": "default", "path": "a=b"}, values)

	values, err = parsePairs([]string{"Authorization: Bearer x"}, ":")
	require.NoError(t, err)
	assert.Equal(t, "Bearer x", values["Authorization"])

	_, err = parsePairs([]string{"=novalue"}, "=")
	assert.Error(t, err)
	_, err = parsePairs([]string{"plain"}, "=")
	assert.Error(t, err)
}
