package i18n

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		accept   string
		expected language.Tag
	}{
		{"en-US,en;q=0.9", language.English},
		{"de-DE,de;q=0.9", language.German},
		{"fr-FR", language.English}, // Fallback
		{"", language.English},      // Empty
	}

	for _, tt := range tests {
		got := MatchLanguage(tt.accept)
		// We only check the base language for simplicity here, as exact tag matching can be tricky with regions
		base, _ := got.Base()
		exp, _ := tt.expected.Base()
		assert.Equal(t, exp, base, "Accept: %s", tt.accept)
	}
}

func TestNewCLIPrinter(t *testing.T) {
	oldLCAll := os.Getenv("LC_ALL")
	oldLang := os.Getenv("LANG")
	defer func() {
		os.Setenv("LC_ALL", oldLCAll)
		os.Setenv("LANG", oldLang)
	}()

	os.Unsetenv("LC_ALL")
	os.Setenv("LANG", "de_DE.UTF-8")
	p := NewCLIPrinter()
	assert.NotNil(t, p)

	os.Unsetenv("LANG")
	p = NewCLIPrinter()
	assert.NotNil(t, p)
}
