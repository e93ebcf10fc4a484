package base64url

import (
	"bytes"
	"encoding/base64"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	t.Run("decodes unpadded URL-safe text", func(t *testing.T) {
		// "?>>" lands on a "/" in the standard alphabet.
		encoded := base64.StdEncoding.EncodeToString([]byte("subjects?>>"))
		assert.Contains(t, encoded, "/")

		urlSafe := Encode([]byte("subjects?>>"))
		assert.NotContains(t, urlSafe, "/")
		assert.NotContains(t, urlSafe, "=")
		assert.Equal(t, "subjects?>>", DecodeString(urlSafe))
	})

	t.Run("accepts padded input", func(t *testing.T) {
		assert.Equal(t, "ab", DecodeString("YWI="))
		assert.Equal(t, "ab", DecodeString("YWI"))
	})

	t.Run("returns empty output for malformed input", func(t *testing.T) {
		assert.Empty(t, Decode("!!!not base64!!!"))
		assert.Empty(t, Decode("a"))
		assert.NotNil(t, Decode("a"))
	})

	t.Run("returns empty output for empty input", func(t *testing.T) {
		assert.Empty(t, Decode(""))
		assert.Empty(t, Decode("   "))
	})
}

func TestEncode(t *testing.T) {
	t.Run("strips padding", func(t *testing.T) {
		assert.Equal(t, "YQ", Encode([]byte("a")))
		assert.Equal(t, "YWI", Encode([]byte("ab")))
		assert.Equal(t, "YWJj", Encode([]byte("abc")))
	})

	t.Run("uses the URL-safe alphabet", func(t *testing.T) {
		data := []byte{0xfb, 0xff, 0xbf}
		assert.Equal(t, "-_-_", Encode(data))
	})

	t.Run("encodes empty input as empty text", func(t *testing.T) {
		assert.Equal(t, "", Encode(nil))
	})
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for size := 0; size < 300; size++ {
		data := make([]byte, size)
		rng.Read(data)

		decoded := Decode(Encode(data))
		if !bytes.Equal(data, decoded) {
			t.Fatalf("round trip failed for %d bytes: got %x, want %x", size, decoded, data)
		}
	}

	t.Run("text overload round-trips UTF-8", func(t *testing.T) {
		text := "Grüße, 世界! 👋"
		assert.Equal(t, text, DecodeString(EncodeString(text)))
	})
}
