package crypto

import (
	"bytes"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/common"
)

func TestRoundTrip(t *testing.T) {
	codec := NewCodec("test-secret")
	rng := rand.New(rand.NewSource(1))

	ids := []string{"", "1", "42", "2147483647", strings.Repeat("x", 100), "héllo wörld"}
	for i := 0; i < 200; i++ {
		ids = append(ids, strconv.FormatInt(rng.Int63(), 10))
	}

	for _, id := range ids {
		tok, err := codec.Encode(id)
		require.NoError(t, err)

		got, err := codec.Decode(tok)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestEncodeIsSalted(t *testing.T) {
	codec := NewCodec("test-secret")

	a, err := codec.Encode("1337")
	require.NoError(t, err)
	b, err := codec.Encode("1337")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	for _, tok := range []string{a, b} {
		got, err := codec.Decode(tok)
		require.NoError(t, err)
		assert.Equal(t, "1337", got)
	}
}

func TestTokenAlphabet(t *testing.T) {
	codec := NewCodec("test-secret")
	tok, err := codec.Encode("987654321")
	require.NoError(t, err)

	for _, r := range tok {
		assert.True(t, strings.ContainsRune(tokenAlphabet, r), "unexpected rune %q in %q", r, tok)
	}
}

func TestDeterministicWithFixedSalt(t *testing.T) {
	codec := NewCodec("test-secret")
	codec.rand = bytes.NewReader(bytes.Repeat([]byte{7}, 2*SaltSize))

	a, err := codec.Encode("55")
	require.NoError(t, err)
	b, err := codec.Encode("55")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDifferentSecretDoesNotRecover(t *testing.T) {
	tok, err := NewCodec("one").Encode("100500")
	require.NoError(t, err)

	got, err := NewCodec("two").Decode(tok)
	require.NoError(t, err)
	assert.NotEqual(t, "100500", got)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	codec := NewCodec("test-secret")

	cases := map[string]string{
		"empty":             "",
		"outside charset":   "hello-world!",
		"uppercase":         "ABCDEFGHJKMN",
		"excluded letter":   "iiiiiiiiiiii",
		"shorter than salt": "0123",
		"padding":           "01234567========",
		"unicode":           "ключ",
	}

	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Decode(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrInvalidToken))
		})
	}
}

func TestDecodeNeverPanics(t *testing.T) {
	codec := NewCodec("test-secret")
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		buf := make([]byte, rng.Intn(40))
		for j := range buf {
			buf[j] = byte(rng.Intn(256))
		}
		assert.NotPanics(t, func() { _, _ = codec.Decode(string(buf)) })
	}
}

func TestMessageIDRoundTrip(t *testing.T) {
	c := NewCodec("secret")

	tok, err := c.EncodeMessageID(4821)
	require.NoError(t, err)
	id, err := c.DecodeMessageID(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(4821), id)

	notNumeric, err := c.Encode("report.pdf")
	require.NoError(t, err)
	_, err = c.DecodeMessageID(notNumeric)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	negative, err := c.Encode("-3")
	require.NoError(t, err)
	_, err = c.DecodeMessageID(negative)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}
