package utils

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePath(t *testing.T) {
	cases := map[string]string{
		"recording.webm":           "recording.webm",
		"../../etc/passwd":         "etc/passwd",
		`Videos\\clips\\a.webm`:    "Videos/clips/a.webm",
		"./a/./b/../c.webm":        "a/b/c.webm",
		`bad<>:"|?*name.webm`:      "badname.webm",
		"tab\tchar.webm":           "tabchar.webm",
		"trailing. /x.webm":        "trailing/x.webm",
		"  spaced  /  file.webm  ": "spaced/file.webm",
		"":                         "",
		"../..":                    "",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizePath(in), "input %q", in)
	}

	assert.Equal(t, "download", SanitizeFilename("..", "download"))
	assert.Equal(t, "a.webm", SanitizeFilename("a.webm", "download"))
}

func TestPathWithinDir(t *testing.T) {
	root := t.TempDir()
	assert.True(t, PathWithinDir(filepath.Join(root, "a", "b.webm"), root))
	assert.True(t, PathWithinDir(root, root))
	assert.False(t, PathWithinDir(filepath.Join(root, "..", "escape.webm"), root))
	assert.False(t, PathWithinDir(root+"-sibling", root))
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	token, expires, err := issuer.GenerateToken("popup-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	clientID, err := issuer.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "popup-1", clientID)

	_, err = NewTokenIssuer("other", time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := issuer.GenerateToken("popup-1")
	require.NoError(t, err)

	_, err = issuer.ValidateToken(token)
	assert.Error(t, err)
}

func TestCompareSecret(t *testing.T) {
	hash, err := HashSecret("123456")
	require.NoError(t, err)
	assert.NoError(t, CompareSecret(hash, "123456"))
	assert.Error(t, CompareSecret(hash, "654321"))
}

func TestHashSecretTrimsAndRejectsEmpty(t *testing.T) {
	hash, err := HashSecret(" 123456\n")
	require.NoError(t, err)
	assert.NoError(t, CompareSecret(hash, "123456"))
	assert.NoError(t, CompareSecret(hash, "123456\n"))

	_, err = HashSecret("  ")
	assert.ErrorIs(t, err, ErrEmptyPairingCode)
}
