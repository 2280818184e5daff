package main

import (
	"fmt"
	"os"

	"github.com/pevans/newsapp/config"
	"github.com/pevans/newsapp/logging"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	subcommand := os.Args[1]
	if subcommand == "help" || subcommand == "--help" || subcommand == "-h" {
		printUsage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr so JSON output on stdout stays parseable
	log := logging.NewWithOutput("newsapp", os.Stderr)

	switch subcommand {
	case "load":
		handleLoad(cfg, log, os.Args[2:])
	case "list":
		handleList(cfg, os.Args[2:])
	case "show":
		handleShow(cfg, os.Args[2:])
	case "loads":
		handleLoads(cfg, os.Args[2:])
	case "config":
		handleConfig(cfg, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("newsapp - Guardian content API reader")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  newsapp <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  load       Fetch and decode the configured query, then store the items")
	fmt.Println("  list       List the stored items")
	fmt.Println("  show       Show one stored item by index")
	fmt.Println("  loads      Show the load history")
	fmt.Println("  config     Show the effective configuration")
	fmt.Println("  help       Show this help message")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  NEWSAPP_CONFIG           Path to config file (default: ~/.newsapp/config.yaml)")
	fmt.Println("  NEWSAPP_REQUEST_URL      Query URL to load")
	fmt.Println("  NEWSAPP_FORMAT           Response format: json or feed")
	fmt.Println("  NEWSAPP_API_KEY          Replaces the api-key query parameter")
	fmt.Println("  NEWSAPP_FEED_DIR         Item storage directory (default: ~/.newsapp/feed)")
	fmt.Println("  NEWSAPP_DIAGNOSTICS_DSN  Load history database (default: ~/.newsapp/diagnostics.db)")
	fmt.Println("  LOG_LEVEL                DEBUG, INFO, WARN or ERROR")
}
