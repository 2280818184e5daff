package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pevans/newsapp/config"
	"github.com/pevans/newsapp/diagnostics"
)

func handleLoads(cfg *config.Config, args []string) {
	// Parse flags for loads command
	fs := flag.NewFlagSet("loads", flag.ExitOnError)
	status := fs.String("status", "", "Filter by status (ok, empty, no_url, no_network, fetch_error, parse_error, canceled)")
	limit := fs.Int("limit", 20, "Maximum number of loads to display")
	summary := fs.Bool("summary", false, "Show counts per status instead of individual loads")
	prune := fs.Int("prune", -1, "Delete all but the N most recent loads")
	format := fs.String("format", "table", "Output format: table, json")
	fs.Parse(args)

	history := openHistory(cfg)
	defer history.Close()

	if *prune >= 0 {
		removed, err := history.Prune(*prune)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Removed %d load(s)\n", removed)
		return
	}

	if *summary {
		counts, err := history.Summary()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if *format == "json" {
			printJSON(counts)
			return
		}
		fmt.Print(formatSummary(counts))
		return
	}

	filter := diagnostics.LoadFilter{Limit: *limit}
	if *status != "" {
		filter.Status = status
	}

	loads, err := history.ListLoads(filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list loads: %v\n", err)
		os.Exit(1)
	}

	switch *format {
	case "json":
		printJSON(loads)
	case "table":
		printLoadsTable(loads)
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid format: %s (must be table or json)\n", *format)
		os.Exit(1)
	}
}

func handleConfig(cfg *config.Config, args []string) {
	action := "show"
	if len(args) > 0 {
		action = args[0]
	}

	switch action {
	case "show":
		data, err := cfg.Redacted().Marshal()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(data))
	case "path":
		path, err := config.ConfigPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(path)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown config command: %s (must be show or path)\n", action)
		os.Exit(1)
	}
}
