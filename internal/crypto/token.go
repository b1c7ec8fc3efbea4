package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/common"
)

const (
	// SaltSize is the number of random bytes prefixed to every token.
	SaltSize = 6
	// keystreamSize is the length of the derived keystream; longer identifiers
	// reuse it cyclically.
	keystreamSize = 32

	tokenAlphabet = "0123456789abcdefghjkmnpqrstvwxyz"
	keystreamInfo = "channel-blob-token"
)

var tokenEncoding = base32.NewEncoding(tokenAlphabet).WithPadding(base32.NoPadding)

// Codec turns internal identifiers into URL-safe public tokens and back.
//
// The scheme is obfuscation only: the keystream is derived from the shared
// secret and the salt carried in the token, and there is no integrity tag.
// Anyone holding the secret can mint a token for any identifier, and a token
// is not proof of authorization. Changing this would invalidate every token
// already handed out.
type Codec struct {
	secret []byte
	rand   io.Reader
}

// NewCodec creates a codec bound to secret.
func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret), rand: rand.Reader}
}

// Encode obfuscates identifier under a fresh salt. Two calls with the same
// identifier return different tokens; both decode to identifier.
func (c *Codec) Encode(identifier string) (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(c.rand, salt); err != nil {
		return "", fmt.Errorf("token salt: %w", err)
	}

	keystream, err := c.keystream(salt)
	if err != nil {
		return "", err
	}

	raw := make([]byte, SaltSize+len(identifier))
	copy(raw, salt)
	xorInto(raw[SaltSize:], []byte(identifier), keystream)

	return tokenEncoding.EncodeToString(raw), nil
}

// Decode recovers the identifier carried by token. Any malformed input yields
// an error wrapping common.ErrInvalidToken.
func (c *Codec) Decode(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty", common.ErrInvalidToken)
	}

	raw, err := tokenEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if len(raw) < SaltSize {
		return "", fmt.Errorf("%w: shorter than salt", common.ErrInvalidToken)
	}

	keystream, err := c.keystream(raw[:SaltSize])
	if err != nil {
		return "", err
	}

	plain := make([]byte, len(raw)-SaltSize)
	xorInto(plain, raw[SaltSize:], keystream)
	return string(plain), nil
}

func (c *Codec) keystream(salt []byte) ([]byte, error) {
	ks := make([]byte, keystreamSize)
	r := hkdf.New(sha256.New, c.secret, salt, []byte(keystreamInfo))
	if _, err := io.ReadFull(r, ks); err != nil {
		return nil, fmt.Errorf("token keystream: %w", err)
	}
	return ks, nil
}

func xorInto(dst, src, keystream []byte) {
	for i := range src {
		dst[i] = src[i] ^ keystream[i%len(keystream)]
	}
}

// EncodeMessageID issues a token for a storage channel message.
func (c *Codec) EncodeMessageID(messageID int64) (string, error) {
	return c.Encode(strconv.FormatInt(messageID, 10))
}

// DecodeMessageID recovers a channel message id. A token that decodes to
// anything but a positive integer is invalid.
func (c *Codec) DecodeMessageID(token string) (int64, error) {
	id, err := c.Decode(token)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: not a message id", common.ErrInvalidToken)
	}
	return n, nil
}
