package auth

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenFormat_Issue(t *testing.T) {
	f := DefaultTokenFormat()

	token, hash, display, err := f.Issue()
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(token, DefaultTokenPrefix))
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(token, DefaultTokenPrefix))
	require.NoError(t, err)
	assert.Len(t, raw, DefaultTokenBytes)

	assert.Equal(t, HashToken(token), hash)
	assert.Len(t, hash, 64)
	assert.Equal(t, token[:len(DefaultTokenPrefix)+8], display)
	assert.NoError(t, f.Parse(token))
}

func TestTokenFormat_NoCollisions(t *testing.T) {
	f := DefaultTokenFormat()
	seen := make(map[string]struct{}, 200)

	for range 200 {
		_, hash, _, err := f.Issue()
		require.NoError(t, err)
		require.NotContains(t, seen, hash)
		seen[hash] = struct{}{}
	}
}

func TestHashToken(t *testing.T) {
	assert.Equal(t, HashToken("skc_member-7"), HashToken("skc_member-7"))
	assert.NotEqual(t, HashToken("skc_member-7"), HashToken("skc_member-8"))
	// sha256("")
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashToken(""))
}

func TestTokenFormat_Parse(t *testing.T) {
	f, err := NewTokenFormat("skc_", 16)
	require.NoError(t, err)
	payload := base64.RawURLEncoding.EncodeToString(make([]byte, 16))

	cases := map[string]bool{
		"skc_" + payload:         true,
		"skc_" + payload[:10]:    false,
		"skc_" + payload + "AAA": false,
		payload:                  false,
		"ghp_" + payload:         false,
		"SKC_" + payload:         false,
		"skc_":                   false,
		"skc_!!!invalid!!!":      false,
		"":                       false,
	}
	for token, valid := range cases {
		t.Run(token, func(t *testing.T) {
			err := f.Parse(token)
			if valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestTokenFormat_Display(t *testing.T) {
	f := DefaultTokenFormat()

	assert.Equal(t, "skc_abc123de", f.Display("skc_abc123def456"))
	assert.Equal(t, "skc_abc", f.Display("skc_abc"))
	assert.Empty(t, f.Display("invalid"))
}

func TestNewTokenFormat(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		size   int
		ok     bool
	}{
		{"default", DefaultTokenPrefix, DefaultTokenBytes, true},
		{"longer prefix", "club_", 48, true},
		{"no separator", "skc", 32, false},
		{"separator only", "_", 32, false},
		{"uppercase", "SKC_", 32, false},
		{"digits", "skc2_", 32, false},
		{"too small", "skc_", 8, false},
		{"too large", "skc_", 128, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewTokenFormat(tt.prefix, tt.size)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.prefix, f.Prefix)
				return
			}
			assert.Error(t, err)
		})
	}
}
