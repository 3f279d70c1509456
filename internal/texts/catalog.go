// Package texts holds the localized messages shown by every channel.
package texts

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embedded []byte

// Language is a selectable interface language.
type Language struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type file struct {
	Default   string                       `yaml:"default"`
	Languages []Language                   `yaml:"languages"`
	Messages  map[string]map[string]string `yaml:"messages"`
}

// Catalog resolves message keys per language.
type Catalog struct {
	def       string
	languages []Language
	messages  map[string]map[string]string
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(embedded)
}

// MustDefault is Default for wiring code that cannot recover anyway.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse loads a catalog and checks that every language defines the same keys
// as the default one.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse text catalog: %w", err)
	}
	if len(f.Languages) == 0 {
		return nil, fmt.Errorf("text catalog: no languages")
	}
	if f.Default == "" {
		f.Default = f.Languages[0].Code
	}
	base, ok := f.Messages[f.Default]
	if !ok {
		return nil, fmt.Errorf("text catalog: no messages for default language %q", f.Default)
	}
	for _, l := range f.Languages {
		msgs, ok := f.Messages[l.Code]
		if !ok {
			return nil, fmt.Errorf("text catalog: no messages for %q", l.Code)
		}
		var missing []string
		for k := range base {
			if _, ok := msgs[k]; !ok {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return nil, fmt.Errorf("text catalog: %q is missing %s", l.Code, strings.Join(missing, ", "))
		}
	}
	return &Catalog{def: f.Default, languages: f.Languages, messages: f.Messages}, nil
}

// DefaultLanguage returns the language used before a user picks one.
func (c *Catalog) DefaultLanguage() string { return c.def }

// WithDefault returns a copy of c whose default language is lang. Every
// language carries the full key set, so any known language can be the default.
func (c *Catalog) WithDefault(lang string) (*Catalog, error) {
	if lang == "" || lang == c.def {
		return c, nil
	}
	if !c.Has(lang) {
		return nil, fmt.Errorf("text catalog: unknown default language %q", lang)
	}
	out := *c
	out.def = lang
	return &out, nil
}

// Languages lists the selectable languages in display order.
func (c *Catalog) Languages() []Language {
	out := make([]Language, len(c.languages))
	copy(out, c.languages)
	return out
}

// Has reports whether lang is a known language code.
func (c *Catalog) Has(lang string) bool {
	for _, l := range c.languages {
		if l.Code == lang {
			return true
		}
	}
	return false
}

// HasKey reports whether key exists in the default language.
func (c *Catalog) HasKey(key string) bool {
	_, ok := c.messages[c.def][key]
	return ok
}

// Text renders key in lang, replacing {name} placeholders from vars.
// Unknown languages fall back to the default; unknown keys render as the key.
func (c *Catalog) Text(lang, key string, vars map[string]string) string {
	msg, ok := c.messages[lang][key]
	if !ok {
		msg, ok = c.messages[c.def][key]
	}
	if !ok {
		return key
	}
	if len(vars) == 0 {
		return msg
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}
