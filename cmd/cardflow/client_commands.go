package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/brojonat/cardflow/client"
	"github.com/brojonat/cardflow/service/payment"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func catalogCommand() *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "List the storefront catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://localhost:8080",
				Usage:   "HTTP server URL",
				EnvVars: []string{"CARDFLOW_SERVER_URL"},
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := c.String("server")
			jsonOutput := c.Bool("json")

			cl := client.NewClient(serverURL, nil, cliLogger())

			items, err := cl.Catalog(context.Background())
			if err != nil {
				return fmt.Errorf("failed to fetch catalog: %w", err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(items, "", "  ")
				fmt.Println(string(data))
			} else {
				if len(items) == 0 {
					fmt.Println("Catalog is empty")
					return nil
				}

				fmt.Printf("Found %d item(s):\n\n", len(items))
				for _, item := range items {
					fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
					fmt.Printf("ID:          %s\n", item.ID)
					fmt.Printf("Name:        %s\n", item.Name)
					fmt.Printf("Description: %s\n", item.Description)
					fmt.Printf("Price:       %s\n", payment.FormatUSD(item.Price))
					if item.Popular {
						fmt.Printf("Popular:     yes\n")
					}
					fmt.Println()
				}
				fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			}

			return nil
		},
	}
}

func purchaseCommand() *cli.Command {
	return &cli.Command{
		Name:      "purchase",
		Aliases:   []string{"buy"},
		Usage:     "Buy a catalog item, starting a pipeline run",
		ArgsUsage: "ITEM_ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://localhost:8080",
				Usage:   "HTTP server URL",
				EnvVars: []string{"CARDFLOW_SERVER_URL"},
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("item id is required")
			}

			itemID := c.Args().Get(0)
			serverURL := c.String("server")
			jsonOutput := c.Bool("json")

			cl := client.NewClient(serverURL, nil, cliLogger())

			purchase, err := cl.Purchase(context.Background(), itemID)
			if err != nil {
				return fmt.Errorf("failed to purchase item: %w", err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(purchase, "", "  ")
				fmt.Println(string(data))
			} else {
				fmt.Printf("✓ Purchase accepted\n")
				fmt.Printf("  Record ID: %s\n", purchase.ID)
				fmt.Printf("  Item:      %s\n", purchase.ItemLabel)
				fmt.Printf("  Price:     %s\n", payment.FormatUSD(purchase.OriginalAmount))
				fmt.Printf("  Discount:  %s\n", payment.FormatUSD(purchase.Discount))
				fmt.Printf("  Total:     %s\n", payment.FormatUSD(purchase.FinalAmount))
				fmt.Printf("\nFollow the pipeline with: cardflow sse stream %s\n", purchase.ID)
			}

			return nil
		},
	}
}

func purchasesCommand() *cli.Command {
	return &cli.Command{
		Name:    "purchases",
		Aliases: []string{"ls"},
		Usage:   "List settled purchases (outputs JSON by default)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://localhost:8080",
				Usage:   "HTTP server URL",
				EnvVars: []string{"CARDFLOW_SERVER_URL"},
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Value:   20,
				Usage:   "Maximum number of purchases to retrieve (1-1000)",
			},
			&cli.IntFlag{
				Name:    "offset",
				Aliases: []string{"o"},
				Value:   0,
				Usage:   "Number of purchases to skip",
			},
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Usage:   "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
				Aliases: []string{"jq"},
			},
			&cli.BoolFlag{
				Name:    "table",
				Aliases: []string{"t"},
				Usage:   "Output as human-readable table instead of JSON",
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := c.String("server")
			limit := c.Int("limit")
			offset := c.Int("offset")
			jqFilters := c.StringSlice("must-jq")
			tableOutput := c.Bool("table")

			if limit < 1 || limit > 1000 {
				return fmt.Errorf("limit must be between 1 and 1000")
			}
			if offset < 0 {
				return fmt.Errorf("offset cannot be negative")
			}

			// Compile jq filters
			compiledJQFilters := make([]*gojq.Code, len(jqFilters))
			for i, filter := range jqFilters {
				query, err := gojq.Parse(filter)
				if err != nil {
					return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
				}
				compiledJQFilters[i], err = gojq.Compile(query)
				if err != nil {
					return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
				}
			}

			cl := client.NewClient(serverURL, nil, cliLogger())

			purchases, err := cl.List(context.Background(), limit, offset)
			if err != nil {
				return fmt.Errorf("failed to list purchases: %w", err)
			}

			// Apply jq filters (all must return true for a purchase to be kept)
			if len(compiledJQFilters) > 0 {
				filtered := purchases[:0]
				for _, p := range purchases {
					ok, err := matchesJQFilters(p, compiledJQFilters)
					if err != nil {
						return err
					}
					if ok {
						filtered = append(filtered, p)
					}
				}
				purchases = filtered
			}

			// Default to JSON output
			if !tableOutput {
				data, _ := json.MarshalIndent(purchases, "", "  ")
				fmt.Println(string(data))
			} else {
				if len(purchases) == 0 {
					fmt.Println("No settled purchases found")
					return nil
				}

				fmt.Printf("Found %d purchase(s):\n\n", len(purchases))
				for i, p := range purchases {
					fmt.Printf("[%d] %s\n", i+1, p.ItemLabel)
					fmt.Printf("    ID:      %s\n", p.ID)
					fmt.Printf("    Amount:  %s (after %s discount)\n", payment.FormatUSD(p.FinalAmount), payment.FormatUSD(p.Discount))
					fmt.Printf("    Status:  %s\n", p.Status)
					if p.TxHash != "" {
						fmt.Printf("    Tx Hash: %s\n", p.TxHash)
					}
					if p.BlockNumber != 0 {
						fmt.Printf("    Block:   %d\n", p.BlockNumber)
					}
					if p.SettledAt != nil {
						fmt.Printf("    Settled: %s\n", p.SettledAt.Format(time.RFC3339))
					}
					fmt.Println()
				}
			}

			return nil
		},
	}
}

func summaryCommand() *cli.Command {
	return &cli.Command{
		Name:    "summary",
		Aliases: []string{"dashboard"},
		Usage:   "Show the merchant dashboard aggregates",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://localhost:8080",
				Usage:   "HTTP server URL",
				EnvVars: []string{"CARDFLOW_SERVER_URL"},
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := c.String("server")
			jsonOutput := c.Bool("json")

			cl := client.NewClient(serverURL, nil, cliLogger())

			summary, err := cl.MerchantSummary(context.Background())
			if err != nil {
				return fmt.Errorf("failed to fetch merchant summary: %w", err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(summary, "", "  ")
				fmt.Println(string(data))
			} else {
				fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
				fmt.Println("Merchant Dashboard")
				fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
				fmt.Printf("Treasury Balance: %s\n", payment.FormatUSD(summary.TreasuryBalance))
				fmt.Printf("Merchant Balance: %s\n", payment.FormatUSD(summary.MerchantBalance))
				fmt.Printf("Sales Count:      %d\n", summary.SalesCount)
				fmt.Printf("Fees Saved:       %s\n", payment.FormatUSD(summary.FeesSaved))
				if summary.AvgSettlementMS > 0 {
					fmt.Printf("Avg Settlement:   %dms\n", summary.AvgSettlementMS)
				}
				fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			}

			return nil
		},
	}
}

// matchesJQFilters runs every compiled filter against the purchase (as a
// generic JSON value) and reports whether all of them are truthy.
func matchesJQFilters(p client.Purchase, filters []*gojq.Code) (bool, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("failed to marshal purchase: %w", err)
	}
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return false, fmt.Errorf("failed to unmarshal purchase: %w", err)
	}

	for _, code := range filters {
		iter := code.Run(value)
		v, ok := iter.Next()
		if !ok {
			// No result means filter failed
			return false, nil
		}
		if err, isErr := v.(error); isErr {
			return false, fmt.Errorf("jq filter error: %w", err)
		}
		if !isTruthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}

// cliLogger returns an error-only logger so command output stays clean.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}
