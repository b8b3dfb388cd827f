package inventory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Store implements the inventory operations over a Backend. Rows are
// addressed by position only.
//
// Writers in one process are serialised; separate processes appending to
// the same table can still compute the same next row and overwrite each
// other.
type Store struct {
	backend Backend
	now     func() time.Time
	logger  zerolog.Logger
	mu      sync.Mutex
}

type Option func(*Store)

// WithClock replaces the wall clock used to stamp appended rows.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureTable creates the named table if the spreadsheet does not have it.
func (s *Store) EnsureTable(ctx context.Context, spreadsheetID, name string) error {
	tables, err := s.backend.Tables(ctx, spreadsheetID)
	if err != nil {
		return err
	}

	for _, t := range tables {
		if t.Title == name {
			return nil
		}
	}

	s.logger.Info().
		Str("spreadsheet_id", spreadsheetID).
		Str("table", name).
		Msg("Creating table")

	return s.backend.BatchEdit(ctx, spreadsheetID, []Edit{AddTable(name)})
}

// TableID resolves the numeric id of the named table.
func (s *Store) TableID(ctx context.Context, spreadsheetID, name string) (int64, error) {
	tables, err := s.backend.Tables(ctx, spreadsheetID)
	if err != nil {
		return 0, err
	}

	for _, t := range tables {
		if t.Title == name {
			return t.ID, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrTableNotFound, name)
}

// NextEmptyRow returns the row after the last entry in column A. Gaps left
// inside the occupied span are not reused.
func (s *Store) NextEmptyRow(ctx context.Context, spreadsheetID, name string) (int, error) {
	values, err := s.backend.Values(ctx, spreadsheetID, ColumnsRange(name, ColumnItem, ColumnItem))
	if err != nil {
		return 0, err
	}

	return len(values) + 1, nil
}

// Append writes a timestamped row at the next empty row.
func (s *Store) Append(ctx context.Context, spreadsheetID, name, item, location, quantity string) error {
	if strings.TrimSpace(item) == "" {
		return fmt.Errorf("%w: item is required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.EnsureTable(ctx, spreadsheetID, name); err != nil {
		return err
	}

	next, err := s.NextEmptyRow(ctx, spreadsheetID, name)
	if err != nil {
		return err
	}

	row := NewRow(item, location, quantity, s.now())
	r := RowRange(name, next, ColumnItem, ColumnTimestamp)
	if err := s.backend.Update(ctx, spreadsheetID, r, [][]string{row.Cells()}); err != nil {
		return err
	}

	s.logger.Info().
		Str("spreadsheet_id", spreadsheetID).
		Str("table", name).
		Int("row", next).
		Str("item", item).
		Str("location", location).
		Msg("Appended row")

	return nil
}

// FindByItem returns the rows whose item matches query, in table order. A
// blank query finds nothing.
func (s *Store) FindByItem(ctx context.Context, spreadsheetID, name, query string) ([]Row, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	values, err := s.backend.Values(ctx, spreadsheetID, ColumnsRange(name, ColumnItem, ColumnTimestamp))
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, cells := range values {
		if len(cells) > ColumnItem && Matches(cells[ColumnItem], query) {
			rows = append(rows, RowFromCells(cells))
		}
	}

	s.logger.Debug().
		Str("table", name).
		Str("query", query).
		Int("matched", len(rows)).
		Msg("Searched by item")

	return rows, nil
}

// ClearByLocation deletes every row whose location matches query in a single
// batch and returns how many were removed. Deletes run from the bottom up so
// pending indices stay valid.
func (s *Store) ClearByLocation(ctx context.Context, spreadsheetID, name, query string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tableID, err := s.TableID(ctx, spreadsheetID, name)
	if err != nil {
		return 0, err
	}

	// a blank query clears nothing, but the table must still exist
	if strings.TrimSpace(query) == "" {
		return 0, nil
	}

	values, err := s.backend.Values(ctx, spreadsheetID, ColumnsRange(name, ColumnItem, ColumnTimestamp))
	if err != nil {
		return 0, err
	}

	var matched []int
	for i, cells := range values {
		if len(cells) > ColumnLocation && Matches(cells[ColumnLocation], query) {
			matched = append(matched, i+1)
		}
	}

	if len(matched) == 0 {
		s.logger.Debug().Str("table", name).Str("query", query).Msg("No rows to clear")
		return 0, nil
	}

	edits := make([]Edit, 0, len(matched))
	for i := len(matched) - 1; i >= 0; i-- {
		edits = append(edits, DeleteRow(tableID, matched[i], ColumnItem, columnCount))
	}

	if err := s.backend.BatchEdit(ctx, spreadsheetID, edits); err != nil {
		return 0, err
	}

	s.logger.Info().
		Str("spreadsheet_id", spreadsheetID).
		Str("table", name).
		Str("location", query).
		Int("cleared", len(matched)).
		Msg("Cleared location")

	return len(matched), nil
}

// Rows returns every row of the table in order, including blank ones.
func (s *Store) Rows(ctx context.Context, spreadsheetID, name string) ([]Row, error) {
	values, err := s.backend.Values(ctx, spreadsheetID, ColumnsRange(name, ColumnItem, ColumnTimestamp))
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(values))
	for _, cells := range values {
		rows = append(rows, RowFromCells(cells))
	}
	return rows, nil
}

// Provision returns the spreadsheet id recorded in idPath. When the file does
// not exist a new spreadsheet is created, its id recorded and the table
// ensured.
func (s *Store) Provision(ctx context.Context, idPath, title, table string) (string, error) {
	b, err := os.ReadFile(idPath)
	if err == nil {
		if id := strings.TrimSpace(string(b)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("unable to read spreadsheet id file: %w", err)
	}

	id, err := s.backend.CreateSpreadsheet(ctx, title)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(idPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(idPath, []byte(id), 0644); err != nil {
		return "", fmt.Errorf("unable to record spreadsheet id: %w", err)
	}

	s.logger.Info().
		Str("spreadsheet_id", id).
		Str("title", title).
		Str("path", idPath).
		Msg("Created spreadsheet")

	if err := s.EnsureTable(ctx, id, table); err != nil {
		return "", err
	}

	return id, nil
}

// Sheet binds the store to one table.
func (s *Store) Sheet(spreadsheetID, name string) *Sheet {
	return &Sheet{store: s, spreadsheetID: spreadsheetID, name: name}
}

// Sheet is a Store bound to a spreadsheet and table name.
type Sheet struct {
	store         *Store
	spreadsheetID string
	name          string
}

func (s *Sheet) SpreadsheetID() string { return s.spreadsheetID }
func (s *Sheet) Name() string          { return s.name }

func (s *Sheet) EnsureTable(ctx context.Context) error {
	return s.store.EnsureTable(ctx, s.spreadsheetID, s.name)
}

func (s *Sheet) Append(ctx context.Context, item, location, quantity string) error {
	return s.store.Append(ctx, s.spreadsheetID, s.name, item, location, quantity)
}

func (s *Sheet) FindByItem(ctx context.Context, query string) ([]Row, error) {
	return s.store.FindByItem(ctx, s.spreadsheetID, s.name, query)
}

func (s *Sheet) ClearByLocation(ctx context.Context, query string) (int, error) {
	return s.store.ClearByLocation(ctx, s.spreadsheetID, s.name, query)
}

func (s *Sheet) Rows(ctx context.Context) ([]Row, error) {
	return s.store.Rows(ctx, s.spreadsheetID, s.name)
}
