package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflakeUniqueAndOrdered(t *testing.T) {
	sf, err := NewSnowflake(3)
	require.NoError(t, err)

	seen := make(map[string]struct{}, 5000)
	prev := ""
	for i := 0; i < 5000; i++ {
		v := sf.Generate()
		_, dup := seen[v]
		require.False(t, dup, "duplicate id %s", v)
		seen[v] = struct{}{}
		if prev != "" {
			assert.True(t, len(v) > len(prev) || (len(v) == len(prev) && v > prev))
		}
		prev = v
	}
}

func TestNewSnowflakeRejectsNode(t *testing.T) {
	_, err := NewSnowflake(-1)
	assert.ErrorIs(t, err, ErrInvalidNode)
	_, err = NewSnowflake(4096)
	assert.ErrorIs(t, err, ErrInvalidNode)
}

func TestGenerateUUIDPrefix(t *testing.T) {
	v := GenerateUUID("evt")
	assert.True(t, strings.HasPrefix(v, "evt_"))
	assert.Len(t, v, len("evt_")+26)
}
