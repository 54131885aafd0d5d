package flagx

import (
	"os"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		allowedFlags []string
		want         []string
	}{
		{
			name:         "keeps only the component's flags",
			args:         []string{"-d", "tokens.db", "-value", "abc"},
			allowedFlags: []string{"-d", "-r"},
			want:         []string{"-d", "tokens.db"},
		},
		{
			name:         "equals form kept whole",
			args:         []string{"--config=conf.json", "-value", "abc"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"--config=conf.json"},
		},
		{
			name:         "command word and foreign flags dropped",
			args:         []string{"issue", "-value", "abc", "-owner", "7"},
			allowedFlags: []string{"-d", "-r"},
			want:         []string{},
		},
		{
			name:         "several allowed flags preserve order",
			args:         []string{"-owner", "7", "-kind", "registration", "-i", "15"},
			allowedFlags: []string{"-owner", "-kind"},
			want:         []string{"-owner", "7", "-kind", "registration"},
		},
		{
			name:         "bare flag at the end kept as-is",
			args:         []string{"-n"},
			allowedFlags: []string{"-n"},
			want:         []string{"-n"},
		},
		{
			name:         "flag followed by another flag takes no value",
			args:         []string{"-n", "-d", "tokens.db"},
			allowedFlags: []string{"-n", "-d"},
			want:         []string{"-n", "-d", "tokens.db"},
		},
		{
			name:         "expiry value with spaces stays one token",
			args:         []string{"-expiry", "+1 hour"},
			allowedFlags: []string{"-expiry"},
			want:         []string{"-expiry", "+1 hour"},
		},
		{
			name:         "repeated flag kept in order",
			args:         []string{"-value", "abc", "-value", "def"},
			allowedFlags: []string{"-value"},
			want:         []string{"-value", "abc", "-value", "def"},
		},
		{
			name:         "empty args",
			args:         []string{},
			allowedFlags: []string{"-d", "-r"},
			want:         []string{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := FilterArgs(tt.args, tt.allowedFlags)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("FilterArgs() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func Test_jsonConfigFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("short -c with value", func(t *testing.T) {
		os.Args = []string{"tokenkeeper", "-c", "/etc/tokenkeeper.json"}
		assert.Equal(t, "/etc/tokenkeeper.json", JsonConfigFlags())
	})

	t.Run("long -config with value", func(t *testing.T) {
		os.Args = []string{"tokenkeeper", "purge", "-config", "/etc/tokenkeeper.json"}
		assert.Equal(t, "/etc/tokenkeeper.json", JsonConfigFlags())
	})

	t.Run("command flags are not config paths", func(t *testing.T) {
		os.Args = []string{"tokenkeeper", "issue", "-value", "abc", "-owner", "7"}
		assert.Empty(t, JsonConfigFlags())
	})

	t.Run("both forms, last wins", func(t *testing.T) {
		os.Args = []string{"tokenkeeper", "-c", "/etc/a.json", "-config", "/etc/b.json"}
		assert.Equal(t, "/etc/b.json", JsonConfigFlags())
	})
}
