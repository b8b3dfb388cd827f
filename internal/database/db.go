package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/digitaldrywood/inventory/internal/inventory"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// defaultSheet is the table every new workbook starts with, as in Sheets.
const defaultSheet = "Sheet1"

// DB is a local inventory.Backend. Workbooks hold worksheets of cells
// addressed by row and column, read and edited with the same positional
// rules as the remote store.
type DB struct {
	conn *sql.DB
}

func New(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "inventory.db")
	conn, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Debug().Str("path", dbPath).Msg("Opened inventory database")
	return db, nil
}

func (db *DB) migrate() error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(gooseLogger{})

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.Up(db.conn, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) CreateSpreadsheet(ctx context.Context, title string) (string, error) {
	id := uuid.NewString()

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO workbooks (id, title) VALUES (?, ?)
		`, id, title); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO worksheets (workbook_id, sheet_id, title) VALUES (?, 0, ?)
		`, id, defaultSheet)
		return err
	})
	if err != nil {
		return "", unavailable("unable to create spreadsheet", err)
	}

	return id, nil
}

func (db *DB) Tables(ctx context.Context, spreadsheetID string) ([]inventory.Table, error) {
	if err := db.checkWorkbook(ctx, db.conn, spreadsheetID); err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT sheet_id, title
		FROM worksheets WHERE workbook_id = ?
		ORDER BY sheet_id
	`, spreadsheetID)
	if err != nil {
		return nil, unavailable("unable to list worksheets", err)
	}
	defer rows.Close()

	var tables []inventory.Table
	for rows.Next() {
		var t inventory.Table
		if err := rows.Scan(&t.ID, &t.Title); err != nil {
			return nil, unavailable("unable to list worksheets", err)
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("unable to list worksheets", err)
	}
	return tables, nil
}

func (db *DB) Values(ctx context.Context, spreadsheetID string, r inventory.Range) ([][]string, error) {
	sheetID, err := db.sheetID(ctx, db.conn, spreadsheetID, r.Table)
	if err != nil {
		return nil, err
	}

	firstRow, lastRow := rowBounds(r)
	rows, err := db.conn.QueryContext(ctx, `
		SELECT row_index, col_index, value
		FROM cells
		WHERE workbook_id = ? AND sheet_id = ?
		  AND row_index BETWEEN ? AND ?
		  AND col_index BETWEEN ? AND ?
		ORDER BY row_index, col_index
	`, spreadsheetID, sheetID, firstRow, lastRow, r.FirstColumn, r.LastColumn)
	if err != nil {
		return nil, unavailable("unable to read cells", err)
	}
	defer rows.Close()

	var values [][]string
	for rows.Next() {
		var row, col int
		var value string
		if err := rows.Scan(&row, &col, &value); err != nil {
			return nil, unavailable("unable to read cells", err)
		}

		i := row - firstRow
		for len(values) <= i {
			values = append(values, []string{})
		}
		j := col - r.FirstColumn
		for len(values[i]) <= j {
			values[i] = append(values[i], "")
		}
		values[i][j] = value
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("unable to read cells", err)
	}
	return values, nil
}

func (db *DB) Update(ctx context.Context, spreadsheetID string, r inventory.Range, values [][]string) error {
	firstRow, _ := rowBounds(r)

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		sheetID, err := db.sheetID(ctx, tx, spreadsheetID, r.Table)
		if err != nil {
			return err
		}

		for i, row := range values {
			for j, value := range row {
				if err := setCell(ctx, tx, spreadsheetID, sheetID, firstRow+i, r.FirstColumn+j, value); err != nil {
					return err
				}
			}
		}
		return nil
	})

	return classify("unable to write cells", err)
}

func (db *DB) BatchEdit(ctx context.Context, spreadsheetID string, edits []inventory.Edit) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := db.checkWorkbook(ctx, tx, spreadsheetID); err != nil {
			return err
		}

		for _, e := range edits {
			var err error
			switch e.Kind {
			case inventory.EditAddTable:
				err = addSheet(ctx, tx, spreadsheetID, e.Title)
			case inventory.EditDeleteRange:
				err = deleteRange(ctx, tx, spreadsheetID, e)
			default:
				err = fmt.Errorf("%w: unsupported edit %v", inventory.ErrValidation, e.Kind)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})

	return classify("unable to apply batch update", err)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (db *DB) checkWorkbook(ctx context.Context, q querier, spreadsheetID string) error {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM workbooks WHERE id = ?`, spreadsheetID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: spreadsheet %q not found", inventory.ErrStoreUnavailable, spreadsheetID)
	}
	if err != nil {
		return unavailable("unable to read workbook", err)
	}
	return nil
}

func (db *DB) sheetID(ctx context.Context, q querier, spreadsheetID, title string) (int64, error) {
	if err := db.checkWorkbook(ctx, q, spreadsheetID); err != nil {
		return 0, err
	}

	var id int64
	err := q.QueryRowContext(ctx, `
		SELECT sheet_id FROM worksheets WHERE workbook_id = ? AND title = ?
	`, spreadsheetID, title).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %q", inventory.ErrTableNotFound, title)
	}
	if err != nil {
		return 0, unavailable("unable to read worksheet", err)
	}
	return id, nil
}

func addSheet(ctx context.Context, tx *sql.Tx, spreadsheetID, title string) error {
	var exists int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM worksheets WHERE workbook_id = ? AND title = ?
	`, spreadsheetID, title).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return fmt.Errorf("%w: a sheet with the name %q already exists", inventory.ErrValidation, title)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO worksheets (workbook_id, sheet_id, title)
		SELECT ?, COALESCE(MAX(sheet_id), -1) + 1, ?
		FROM worksheets WHERE workbook_id = ?
	`, spreadsheetID, title, spreadsheetID)
	return err
}

// deleteRange removes the cells of the edit's range and moves the cells
// below it up within the same columns. Rows are shifted through negative
// indices so the primary key never collides mid-update.
func deleteRange(ctx context.Context, tx *sql.Tx, spreadsheetID string, e inventory.Edit) error {
	var sheetID int64
	err := tx.QueryRowContext(ctx, `
		SELECT sheet_id FROM worksheets WHERE workbook_id = ? AND sheet_id = ?
	`, spreadsheetID, e.TableID).Scan(&sheetID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: sheet id %d", inventory.ErrTableNotFound, e.TableID)
	}
	if err != nil {
		return err
	}

	// cells use 1-based rows and 0-based columns; edits are 0-based half-open
	first, last := e.StartRow+1, e.EndRow
	shift := e.EndRow - e.StartRow
	lastColumn := e.EndColumn - 1

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM cells
		WHERE workbook_id = ? AND sheet_id = ?
		  AND row_index BETWEEN ? AND ?
		  AND col_index BETWEEN ? AND ?
	`, spreadsheetID, sheetID, first, last, e.StartColumn, lastColumn); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE cells SET row_index = -(row_index - ?)
		WHERE workbook_id = ? AND sheet_id = ?
		  AND row_index > ?
		  AND col_index BETWEEN ? AND ?
	`, shift, spreadsheetID, sheetID, last, e.StartColumn, lastColumn); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE cells SET row_index = -row_index
		WHERE workbook_id = ? AND sheet_id = ? AND row_index < 0
	`, spreadsheetID, sheetID)
	return err
}

func setCell(ctx context.Context, tx *sql.Tx, spreadsheetID string, sheetID int64, row, col int, value string) error {
	if value == "" {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM cells
			WHERE workbook_id = ? AND sheet_id = ? AND row_index = ? AND col_index = ?
		`, spreadsheetID, sheetID, row, col)
		return err
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO cells (workbook_id, sheet_id, row_index, col_index, value)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (workbook_id, sheet_id, row_index, col_index) DO UPDATE SET value = excluded.value
	`, spreadsheetID, sheetID, row, col, value)
	return err
}

func (db *DB) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// rowBounds turns the open row bounds of a range into concrete limits.
func rowBounds(r inventory.Range) (int, int) {
	first, last := r.FirstRow, r.LastRow
	if first <= 0 {
		first = 1
	}
	if last <= 0 {
		last = int(^uint32(0) >> 1)
	}
	return first, last
}

func classify(msg string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{inventory.ErrTableNotFound, inventory.ErrValidation, inventory.ErrStoreUnavailable} {
		if errors.Is(err, kind) {
			return fmt.Errorf("%s: %w", msg, err)
		}
	}
	return unavailable(msg, err)
}

func unavailable(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, inventory.ErrStoreUnavailable, err)
}

type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	log.Debug().Msgf(format, v...)
}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	log.Fatal().Msgf(format, v...)
}
