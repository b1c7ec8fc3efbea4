// Arsynox CLI - command line client for the file gateway
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/clients/go/arsynox"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	client := arsynox.NewClient(os.Getenv("ARSYNOX_URL"))
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "stats":
		resp, err := client.Stats()
		exitOnError(err)
		printJSON(resp)

	case "upload":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: arsynox upload <path>")
			os.Exit(1)
		}
		resp, err := client.UploadFile(os.Args[2])
		exitOnError(err)
		fmt.Printf("Stored %s (%s)\n", resp.FileName, humanize.Bytes(uint64(resp.Size)))
		fmt.Println(resp.URL)

	case "get":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: arsynox get <token> <output-path>")
			os.Exit(1)
		}
		out, err := os.Create(os.Args[3])
		exitOnError(err)
		info, err := client.Download(os.Args[2], arsynox.ModeAttachment, out)
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
		exitOnError(err)
		fmt.Printf("Saved %s (%s, %s)\n", os.Args[3], info.ContentType, humanize.Bytes(uint64(info.Size)))

	case "webhook":
		remove := len(os.Args) > 2 && os.Args[2] == "delete"
		resp, err := client.SetWebhook(remove)
		exitOnError(err)
		printJSON(resp)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`Arsynox CLI - Telegram-backed file hosting

Usage: arsynox <command> [options]

Commands:
  upload <path>           Upload a file and print its link
  get <token> <path>      Download a file by token
  webhook [delete]        Register or remove the bot webhook
  stats                   Show server statistics
  health                  Check server health

Environment:
  ARSYNOX_URL              Server URL (default: http://localhost:8080)
  ARSYNOX_OPERATOR_SECRET  WEBHOOK_SECRET of the server, for webhook`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
