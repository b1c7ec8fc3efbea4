package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

func main() {
	token := make([]byte, 32)
	if _, err := rand.Read(token); err != nil {
		panic(err)
	}
	// Telegram accepts only A-Z, a-z, 0-9, _ and - in secret_token.
	webhook := make([]byte, 32)
	if _, err := rand.Read(webhook); err != nil {
		panic(err)
	}

	fmt.Printf("TOKEN_SECRET=%s\n", base64.RawURLEncoding.EncodeToString(token))
	fmt.Printf("WEBHOOK_SECRET=%s\n", hex.EncodeToString(webhook))
}
