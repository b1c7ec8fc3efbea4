package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/blobstore"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/crypto"
)

func main() {
	_ = godotenv.Load()

	secret := flag.String("secret", os.Getenv("TOKEN_SECRET"), "Token secret (defaults to $TOKEN_SECRET)")
	encode := flag.Int64("encode", 0, "Channel message id to turn into a token")
	decode := flag.String("decode", "", "Token to turn back into a message id")
	baseURL := flag.String("url", os.Getenv("PUBLIC_URL"), "Public base URL for printed links")
	flag.Parse()

	if *secret == "" || (*encode == 0) == (*decode == "") {
		fmt.Fprintln(os.Stderr, "Usage: token [-secret <secret>] (-encode <message-id> | -decode <token>) [-url <public-url>]")
		fmt.Fprintln(os.Stderr, "  Reads TOKEN_SECRET and PUBLIC_URL from the environment or .env")
		os.Exit(1)
	}

	codec := crypto.NewCodec(*secret)

	if *decode != "" {
		id, err := codec.DecodeMessageID(*decode)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(strconv.FormatInt(id, 10))
		return
	}

	token, err := codec.EncodeMessageID(*encode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Encode failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Token: %s\n", token)
	if *baseURL != "" {
		fmt.Printf("Link:  %s\n", blobstore.PublicLink(*baseURL, token))
	}
}
