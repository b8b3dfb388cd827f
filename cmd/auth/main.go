package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/digitaldrywood/inventory/internal/config"
	"github.com/digitaldrywood/inventory/internal/google"
)

func main() {
	fmt.Println("=== Inventory Tracker Authentication ===")
	fmt.Println()

	config.SetupEnvironment()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	auth, err := google.NewAuth(cfg.CredentialsPath, cfg.TokenPath, cfg.OAuthRedirectURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create auth client")
	}

	ctx := context.Background()

	// This will trigger the OAuth flow if needed
	service, err := auth.GetSheetsService(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to authenticate")
	}

	fmt.Println("✅ Authentication successful!")
	fmt.Printf("🔑 Token stored in %s\n", cfg.TokenPath)

	spreadsheetID := cfg.SpreadsheetID
	if spreadsheetID == "" {
		if b, err := os.ReadFile(cfg.SpreadsheetIDPath); err == nil {
			spreadsheetID = strings.TrimSpace(string(b))
		}
	}

	if spreadsheetID != "" {
		// Test the connection by listing the spreadsheet's tables
		tables, err := google.NewSheetsClient(service).Tables(ctx, spreadsheetID)
		if err != nil {
			log.Fatal().Err(err).Str("spreadsheet_id", spreadsheetID).Msg("Failed to access spreadsheet")
		}
		fmt.Printf("📊 Connected to %s (%d table(s))\n", google.URL(spreadsheetID), len(tables))
	} else {
		fmt.Println("📊 No spreadsheet yet; one will be created on first run.")
	}

	fmt.Println()
	fmt.Println("You can now use the inventory commands:")
	fmt.Println("  go run ./cmd/inventory            - Serve the web form")
	fmt.Println("  go run ./cmd/inventory -list      - Show every row")
	fmt.Println("  go run ./cmd/inventory -search X  - Find rows by item")
}
