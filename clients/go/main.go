// pricechat CLI - command line client for the pricechat assistant
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/eldtechnologies/pricechat/clients/go/pricechat"
	"github.com/eldtechnologies/pricechat/internal/models"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("PRICECHAT_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := pricechat.NewClient(baseURL)
	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "send":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: pricechat send <message> [session_id]")
			os.Exit(1)
		}
		sessionID := os.Getenv("PRICECHAT_SESSION")
		if len(os.Args) > 3 {
			sessionID = os.Args[3]
		}
		resp, err := client.Send(ctx, sessionID, os.Args[2])
		exitOnError(err)
		fmt.Printf("[%s] %s\n", resp.SessionID, resp.Response.Content)
		printProducts(resp.Response.Data)

	case "history":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: pricechat history <session_id>")
			os.Exit(1)
		}
		resp, err := client.History(ctx, os.Args[2])
		exitOnError(err)
		if len(resp.Messages) == 0 {
			fmt.Println(resp.Welcome)
		}
		for _, msg := range resp.Messages {
			ts := msg.Timestamp.Local().Format("2006-01-02 15:04:05")
			fmt.Printf("[%s] %s: %s\n", ts, msg.Role, msg.Content)
		}

	case "reset":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: pricechat reset <session_id>")
			os.Exit(1)
		}
		exitOnError(client.Reset(ctx, os.Args[2]))
		fmt.Println("Session deleted")

	case "products":
		query := ""
		if len(os.Args) > 2 {
			query = strings.Join(os.Args[2:], " ")
		}
		resp, err := client.Products(ctx, query, models.Filters{}, 0)
		exitOnError(err)
		for _, p := range resp.Products {
			fmt.Printf("  %-24s %s (%s)\n", p.ID, p.Name, p.Brand)
		}

	case "compare":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: pricechat compare <id> <id> [id...]")
			os.Exit(1)
		}
		resp, err := client.Compare(ctx, os.Args[2:]...)
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

func printProducts(data any) {
	switch d := data.(type) {
	case models.ProductListData:
		for i, p := range d.Products {
			fmt.Printf("  %d. %s (%s)\n", i+1, p.Name, p.ID)
		}
	case models.ProductDetailData:
		printJSON(d.Product)
	case models.ProductComparisonData:
		for _, p := range d.Products {
			fmt.Printf("  - %s (%s)\n", p.Name, p.ID)
		}
		if len(d.Unresolved) > 0 {
			fmt.Printf("  not found: %s\n", strings.Join(d.Unresolved, ", "))
		}
	}
}

func usage() {
	fmt.Println(`pricechat CLI - product price assistant

Usage: pricechat <command> [options]

Commands:
  send <message> [session]   Send a chat message
  history <session>          Show a session's messages
  reset <session>            Delete a session
  products [query]           Search the product catalog
  compare <id> <id> [id...]  Compare products side by side
  health                     Check server health

Environment:
  PRICECHAT_URL      Server URL (default: http://localhost:8080)
  PRICECHAT_SESSION  Session used by send when none is given`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
