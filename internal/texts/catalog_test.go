package texts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsComplete(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.Equal(t, "ru", c.DefaultLanguage())
	require.True(t, c.Has("kz"))
	require.False(t, c.Has("en"))
	for _, key := range []string{
		"lang.prompt", "menu.prompt", "reading.saved", "booking.saved",
		"error.unknown_account", "error.reading_regression", "error.slot_taken", "error.date_full", "error.internal",
	} {
		require.True(t, c.HasKey(key), key)
	}
}

func TestTextPlaceholdersAndFallbacks(t *testing.T) {
	c := MustDefault()

	require.Equal(t, "☎️ Тех қолдау: 123", c.Text("kz", "support.text", map[string]string{"phone": "123"}))
	require.Equal(t, c.Text("ru", "welcome", nil), c.Text("en", "welcome", nil))
	require.Equal(t, "no.such.key", c.Text("ru", "no.such.key", nil))
}

func TestParseRejectsMissingKeys(t *testing.T) {
	_, err := Parse([]byte(`
default: ru
languages:
  - {code: ru, name: RU}
  - {code: kz, name: KZ}
messages:
  ru: {a: "1", b: "2"}
  kz: {a: "1"}
`))
	require.ErrorContains(t, err, `"kz" is missing b`)
}

func TestWithDefault(t *testing.T) {
	c := MustDefault()

	kz, err := c.WithDefault("kz")
	require.NoError(t, err)
	require.Equal(t, "kz", kz.DefaultLanguage())
	require.Equal(t, "ru", c.DefaultLanguage())
	require.Equal(t, kz.Text("kz", "menu.prompt", nil), kz.Text("en", "menu.prompt", nil))

	same, err := c.WithDefault("")
	require.NoError(t, err)
	require.Same(t, c, same)

	_, err = c.WithDefault("en")
	require.Error(t, err)
}
