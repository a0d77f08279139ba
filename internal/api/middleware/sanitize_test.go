package middleware

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer s3cret")
	h.Set("X-Revalidate-Secret", "s3cret")
	h.Set("User-Agent", "cms\nbot")
	h.Set("X-Long", strings.Repeat("x", 300))

	out := SanitizeHeaders(h)
	assert.Equal(t, []string{"<redacted>"}, out["Authorization"])
	assert.Equal(t, []string{"<redacted>"}, out["X-Revalidate-Secret"])
	assert.Equal(t, []string{"cms bot"}, out["User-Agent"])
	assert.Len(t, out["X-Long"][0], 200)

	assert.Nil(t, SanitizeHeaders(nil))
}

func TestSanitizePath(t *testing.T) {
	assert.Equal(t, "/api/revalidate x", SanitizePath("/api/revalidate\r\nx"))
}
