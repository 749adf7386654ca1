package localization

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLocale(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLocalizerLoadsAndFormats(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	writeLocale(t, dir, "en.json", `{"greeting": "hello", "pending": "you have %d messages"}`)
	writeLocale(t, dir, "fa.json", `{"greeting": "salam"}`)
	writeLocale(t, dir, "notes.txt", "ignored")

	// Act
	l, err := NewLocalizer(dir)

	// Assert
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"en", "fa"}, l.Languages())
	assert.Equal(t, "salam", l.Get("fa", "greeting"))
	assert.Equal(t, "hello", l.Get("en", "greeting"))
	assert.Equal(t, "you have 3 messages", l.Get("en", "pending", 3))
}

func TestLocalizerFallsBackToEnglishThenKey(t *testing.T) {
	dir := t.TempDir()
	writeLocale(t, dir, "en.json", `{"greeting": "hello"}`)
	writeLocale(t, dir, "fa.json", `{}`)

	l, err := NewLocalizer(dir)
	require.NoError(t, err)

	assert.Equal(t, "hello", l.Get("fa", "greeting"), "missing key falls back to English")
	assert.Equal(t, "hello", l.Get("xx", "greeting"), "unknown language falls back to English")
	assert.Equal(t, "no_such_key", l.Get("fa", "no_such_key"), "unknown key is returned as-is")
}

func TestLocalizerRequiresEnglish(t *testing.T) {
	dir := t.TempDir()
	writeLocale(t, dir, "fa.json", `{"greeting": "salam"}`)

	_, err := NewLocalizer(dir)

	assert.Error(t, err)
}

func TestLocalizerRejectsBrokenJSON(t *testing.T) {
	dir := t.TempDir()
	writeLocale(t, dir, "en.json", `{"greeting": `)

	_, err := NewLocalizer(dir)

	assert.Error(t, err)
}

// TestShippedLocalesParse keeps the bundled locale files loadable and
// complete relative to the English key set.
func TestShippedLocalesParse(t *testing.T) {
	l, err := NewLocalizer("locales")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"en", "fa"}, l.Languages())
	for _, key := range []string{"welcome", "match_found", "your_link", "anon_notice", "blocked_notice"} {
		assert.NotEqual(t, key, l.Get("fa", key), "fa locale missing %q", key)
		assert.NotEqual(t, key, l.Get("en", key), "en locale missing %q", key)
	}
}
