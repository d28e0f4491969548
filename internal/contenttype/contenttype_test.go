package contenttype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePrefersStoreProvided(t *testing.T) {
	got := Resolve("image/png", "a.txt", []byte("not a png"))
	assert.Equal(t, "image/png", got)
}

func TestResolveFallsBackToExtension(t *testing.T) {
	got := Resolve("", "report.json", []byte(`{"a":1}`))
	assert.Equal(t, "application/json", got)
}

func TestResolveSniffsWhenExtensionUnknown(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	got := Resolve("", "blob.bin", png)
	assert.Equal(t, "image/png", got)
}

func TestResolveDefaultsToOctetStream(t *testing.T) {
	got := Resolve("", "noext", nil)
	assert.Equal(t, Default, got)
}

func TestResolveStripsParameters(t *testing.T) {
	// The extension table maps .html to "text/html; charset=utf-8".
	got := Resolve("", "index.html", nil)
	assert.Equal(t, "text/html", got)
}
