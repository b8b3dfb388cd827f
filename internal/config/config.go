package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	BackendSheets = "sheets"
	BackendSQLite = "sqlite"
)

type Config struct {
	Backend           string
	SpreadsheetID     string
	SpreadsheetIDPath string
	SpreadsheetTitle  string
	SheetName         string
	CredentialsPath   string
	TokenPath         string
	OAuthRedirectURL  string
	DataDir           string
	ListenAddr        string
}

func Load() (*Config, error) {
	cfg := &Config{
		Backend:           os.Getenv("INVENTORY_BACKEND"),
		SpreadsheetID:     os.Getenv("INVENTORY_SPREADSHEET_ID"),
		SpreadsheetIDPath: os.Getenv("INVENTORY_SPREADSHEET_ID_PATH"),
		SpreadsheetTitle:  os.Getenv("INVENTORY_SPREADSHEET_TITLE"),
		SheetName:         os.Getenv("INVENTORY_SHEET_NAME"),
		CredentialsPath:   os.Getenv("INVENTORY_CREDENTIALS_PATH"),
		TokenPath:         os.Getenv("INVENTORY_TOKEN_PATH"),
		OAuthRedirectURL:  os.Getenv("INVENTORY_OAUTH_REDIRECT_URL"),
		DataDir:           os.Getenv("INVENTORY_DATA_DIR"),
		ListenAddr:        os.Getenv("INVENTORY_LISTEN_ADDR"),
	}

	// Set defaults if not provided
	if cfg.Backend == "" {
		cfg.Backend = BackendSheets
	}
	if cfg.DataDir == "" {
		cfg.DataDir = ".local"
	}
	if cfg.SpreadsheetIDPath == "" {
		cfg.SpreadsheetIDPath = filepath.Join(cfg.DataDir, "spreadsheet_id.txt")
	}
	if cfg.SpreadsheetTitle == "" {
		cfg.SpreadsheetTitle = "Inventory Tracker"
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Sheet1"
	}
	if cfg.CredentialsPath == "" {
		cfg.CredentialsPath = filepath.Join(cfg.DataDir, "credentials.json")
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = filepath.Join(cfg.DataDir, "token.json")
	}
	if cfg.OAuthRedirectURL == "" {
		cfg.OAuthRedirectURL = "http://localhost:8080/callback"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":5000"
	}

	switch cfg.Backend {
	case BackendSheets, BackendSQLite:
	default:
		return nil, fmt.Errorf("INVENTORY_BACKEND must be %q or %q, got %q", BackendSheets, BackendSQLite, cfg.Backend)
	}

	return cfg, nil
}
