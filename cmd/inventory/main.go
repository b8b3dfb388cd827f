package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/digitaldrywood/inventory/internal/config"
	"github.com/digitaldrywood/inventory/internal/database"
	"github.com/digitaldrywood/inventory/internal/export"
	"github.com/digitaldrywood/inventory/internal/google"
	"github.com/digitaldrywood/inventory/internal/inventory"
	"github.com/digitaldrywood/inventory/internal/web"
)

func main() {
	var (
		serve      = flag.Bool("serve", false, "Serve the web front end (default)")
		add        = flag.Bool("add", false, "Append a row")
		item       = flag.String("item", "", "Item name for -add")
		location   = flag.String("location", "", "Location for -add")
		quantity   = flag.String("quantity", "", "Quantity for -add")
		search     = flag.String("search", "", "Show rows whose item matches")
		clearAt    = flag.String("clear", "", "Delete rows whose location matches")
		list       = flag.Bool("list", false, "Show every row")
		tables     = flag.Bool("tables", false, "List the spreadsheet's tables")
		exportPath = flag.String("export", "", "Write the rows to an .xlsx file")
	)
	flag.Parse()

	config.SetupEnvironment()
	gin.SetMode(web.ModeFor(os.Getenv("ENV")))

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, sheetURL, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Backend).Msg("Failed to open backend")
	}
	defer closeBackend()

	store := inventory.NewStore(backend)

	spreadsheetID := cfg.SpreadsheetID
	if spreadsheetID == "" {
		spreadsheetID, err = store.Provision(ctx, cfg.SpreadsheetIDPath, cfg.SpreadsheetTitle, cfg.SheetName)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to provision spreadsheet")
		}
	}

	sheet := store.Sheet(spreadsheetID, cfg.SheetName)
	url := ""
	if sheetURL != nil {
		url = sheetURL(sheet.SpreadsheetID())
		log.Info().Str("url", url).Msg("Using spreadsheet")
	}

	switch {
	case *serve:
		err = serveWeb(ctx, cfg.ListenAddr, sheet, url)
	case *add:
		err = addRow(ctx, sheet, *item, *location, *quantity)
	case *search != "":
		err = showMatches(ctx, sheet, *search)
	case *clearAt != "":
		err = clearLocation(ctx, sheet, *clearAt)
	case *list:
		err = listRows(ctx, sheet)
	case *tables:
		err = listTables(ctx, backend, spreadsheetID)
	case *exportPath != "":
		err = exportRows(ctx, sheet, *exportPath)
	default:
		err = serveWeb(ctx, cfg.ListenAddr, sheet, url)
	}

	if err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

// openBackend returns the configured backend, a function producing the
// browser URL of a spreadsheet (nil when there is none) and a close func.
func openBackend(ctx context.Context, cfg *config.Config) (inventory.Backend, func(string) string, func(), error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := database.New(cfg.DataDir)
		if err != nil {
			return nil, nil, nil, err
		}
		return db, nil, func() {
			if err := db.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close database")
			}
		}, nil

	default:
		auth, err := google.NewAuth(cfg.CredentialsPath, cfg.TokenPath, cfg.OAuthRedirectURL)
		if err != nil {
			return nil, nil, nil, err
		}
		service, err := auth.GetSheetsService(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
		return google.NewSheetsClient(service), google.URL, func() {}, nil
	}
}

// serveWeb makes sure the table exists so the first search or export does not
// fail, then runs the web front end until ctx is done.
func serveWeb(ctx context.Context, addr string, sheet *inventory.Sheet, url string) error {
	if err := sheet.EnsureTable(ctx); err != nil {
		return err
	}
	return runServer(ctx, addr, web.NewServer(sheet, sheet.Name(), url))
}

func runServer(ctx context.Context, addr string, s *web.Server) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Inventory tracker listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func addRow(ctx context.Context, sheet *inventory.Sheet, item, location, quantity string) error {
	if err := sheet.Append(ctx, item, location, quantity); err != nil {
		return err
	}
	fmt.Println("Row added successfully!")
	return nil
}

func showMatches(ctx context.Context, sheet *inventory.Sheet, query string) error {
	rows, err := sheet.FindByItem(ctx, query)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Printf("No items matching %q.\n", query)
		return nil
	}
	printRows(os.Stdout, rows)
	return nil
}

func clearLocation(ctx context.Context, sheet *inventory.Sheet, location string) error {
	n, err := sheet.ClearByLocation(ctx, location)
	if err != nil {
		return err
	}
	fmt.Printf("Cleared %d row(s) at %q.\n", n, location)
	return nil
}

func listRows(ctx context.Context, sheet *inventory.Sheet) error {
	rows, err := sheet.Rows(ctx)
	if err != nil {
		return err
	}
	printRows(os.Stdout, rows)
	return nil
}

func listTables(ctx context.Context, backend inventory.Backend, spreadsheetID string) error {
	tables, err := backend.Tables(ctx, spreadsheetID)
	if err != nil {
		return err
	}

	fmt.Printf("Found %d table(s):\n", len(tables))
	for _, t := range tables {
		fmt.Printf("  %d: %s\n", t.ID, t.Title)
	}
	return nil
}

func exportRows(ctx context.Context, sheet *inventory.Sheet, path string) error {
	rows, err := sheet.Rows(ctx)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := export.WriteXLSX(f, sheet.Name(), rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Printf("Exported %d row(s) to %s\n", len(rows), path)
	return nil
}

func printRows(w io.Writer, rows []inventory.Row) {
	fmt.Fprintf(w, "%-30s %-12s %-10s %s\n", "ITEM", "LOCATION", "QUANTITY", "TIMESTAMP")
	for _, r := range rows {
		fmt.Fprintf(w, "%-30s %-12s %-10s %s\n", r.Item, r.Location, r.Quantity, r.Timestamp)
	}
}
