package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_command(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"command first", []string{"issue", "-owner", "7"}, "issue"},
		{"no args", []string{}, ""},
		{"flag first", []string{"-d", "tokens.db", "purge"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, command(tt.args))
		})
	}
}

func Test_parseCmdArgs(t *testing.T) {
	t.Run("all flags", func(t *testing.T) {
		c, err := parseCmdArgs([]string{"issue", "-value", "abc", "-owner", "7", "-kind", "registration", "-expiry", "+2 hours"})
		require.NoError(t, err)
		assert.Equal(t, "abc", c.value)
		require.NotNil(t, c.ownerID)
		assert.Equal(t, int64(7), *c.ownerID)
		assert.Equal(t, "registration", c.kind)
		assert.Equal(t, "+2 hours", c.expiry)
	})

	t.Run("owner stays nil when absent", func(t *testing.T) {
		c, err := parseCmdArgs([]string{"check", "-value", "abc"})
		require.NoError(t, err)
		assert.Nil(t, c.ownerID)
	})

	t.Run("foreign flags are ignored", func(t *testing.T) {
		c, err := parseCmdArgs([]string{"check", "-d", "tokens.db", "-value", "abc"})
		require.NoError(t, err)
		assert.Equal(t, "abc", c.value)
	})
}
