// Package localization loads translation strings from JSON files and hands
// out localized, optionally formatted strings per user language.
package localization

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const fallbackLang = "en"

// Localizer holds the loaded translations, keyed by language code and then
// by message key. It is read-only after construction.
type Localizer struct {
	translations map[string]map[string]string
}

// NewLocalizer loads every <lang>.json file from the given directory.
func NewLocalizer(path string) (*Localizer, error) {
	l := &Localizer{translations: make(map[string]map[string]string)}

	files, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read localization directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(path, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}
		var messages map[string]string
		if err := json.Unmarshal(data, &messages); err != nil {
			return nil, fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}
		l.translations[strings.TrimSuffix(file.Name(), ".json")] = messages
	}

	if _, ok := l.translations[fallbackLang]; !ok {
		return nil, fmt.Errorf("missing required %s locale in %s", fallbackLang, path)
	}
	return l, nil
}

// Languages lists the loaded language codes.
func (l *Localizer) Languages() []string {
	langs := make([]string, 0, len(l.translations))
	for lang := range l.translations {
		langs = append(langs, lang)
	}
	return langs
}

// Get returns the localized string for the key, falling back to English and
// finally to the key itself. Args are applied with Sprintf when given.
func (l *Localizer) Get(lang, key string, args ...interface{}) string {
	value, ok := l.lookup(lang, key)
	if !ok {
		value, ok = l.lookup(fallbackLang, key)
	}
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(value, args...)
	}
	return value
}

func (l *Localizer) lookup(lang, key string) (string, bool) {
	messages, ok := l.translations[lang]
	if !ok {
		return "", false
	}
	value, ok := messages[key]
	return value, ok
}
