// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/price-engine/internal/fallback"
	"github.com/pdiddy/price-engine/internal/hybrid"
	"github.com/pdiddy/price-engine/internal/pattern"
)

var parseCmd = &cobra.Command{
	Use:   "parse [name...]",
	Short: "Normalize a single product description",
	Long: `Parse runs one (name, price, unit) triple through the pattern catalog
and prints the normalized product as JSON. With --ai, items the catalog
cannot resolve are escalated to the AI fallback extractor, which requires
a provider API key.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().Float64("price", 0, "price for one original sales unit")
	parseCmd.Flags().String("unit", "шт", "original sales unit label")
	parseCmd.Flags().Bool("ai", false, "escalate unresolved items to the AI fallback")

	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	name := strings.Join(args, " ")
	price, _ := cmd.Flags().GetFloat64("price")
	unit, _ := cmd.Flags().GetString("unit")
	useAI, _ := cmd.Flags().GetBool("ai")

	cfg := engineConfig()

	var extractor *fallback.Extractor
	if useAI {
		store, err := newAICache(cfg.Cache)
		if err != nil {
			return err
		}
		defer store.Close()

		extractor, err = fallback.New(cfg.AI, store, os.Stderr)
		if err != nil {
			return err
		}
	}

	coord := hybrid.New(pattern.New(), extractor, os.Stderr)
	product := coord.ParseProduct(context.Background(), name, price, unit)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(product); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}
