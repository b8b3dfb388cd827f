package inventory

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Backend is the remote tabular store the Store drives. Reads follow the
// Sheets API: trailing empty rows and cells are omitted, empty rows inside
// the span come back as empty slices.
type Backend interface {
	CreateSpreadsheet(ctx context.Context, title string) (string, error)
	Tables(ctx context.Context, spreadsheetID string) ([]Table, error)
	Values(ctx context.Context, spreadsheetID string, r Range) ([][]string, error)
	Update(ctx context.Context, spreadsheetID string, r Range, rows [][]string) error
	BatchEdit(ctx context.Context, spreadsheetID string, edits []Edit) error
}

type Table struct {
	ID    int64
	Title string
}

// Range addresses a block of cells. Columns are 0-based and inclusive, rows
// are 1-based and inclusive; a zero row bound leaves that side open.
type Range struct {
	Table       string
	FirstColumn int
	LastColumn  int
	FirstRow    int
	LastRow     int
}

// ColumnsRange spans whole columns, e.g. Sheet1!A:D.
func ColumnsRange(table string, first, last int) Range {
	return Range{Table: table, FirstColumn: first, LastColumn: last}
}

// RowRange spans the given columns of a single row, e.g. Sheet1!A5:D5.
func RowRange(table string, row, first, last int) Range {
	return Range{Table: table, FirstColumn: first, LastColumn: last, FirstRow: row, LastRow: row}
}

// A1 renders the range in A1 notation.
func (r Range) A1() string {
	from := ColumnName(r.FirstColumn)
	to := ColumnName(r.LastColumn)
	if r.FirstRow > 0 {
		from = fmt.Sprintf("%s%d", from, r.FirstRow)
	}
	if r.LastRow > 0 {
		to = fmt.Sprintf("%s%d", to, r.LastRow)
	}

	return fmt.Sprintf("%s!%s:%s", quoteTable(r.Table), from, to)
}

// ColumnName converts a 0-based column offset to its letter (0 -> A, 26 -> AA).
func ColumnName(col int) string {
	name := ""
	for col++; col > 0; col /= 26 {
		col--
		name = string(rune('A'+col%26)) + name
	}
	return name
}

var (
	plainTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	// names that read as a cell (A1, XFD10) or R1C1 reference
	cellLike = regexp.MustCompile(`^(?i:[a-z]{1,3}[0-9]+|r[0-9]*c[0-9]*)$`)
)

// quoteTable leaves plain identifiers bare and single-quotes everything
// else, including names that could be read as a cell reference.
func quoteTable(name string) string {
	if plainTable.MatchString(name) && !cellLike.MatchString(name) {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

type EditKind int

const (
	EditAddTable EditKind = iota
	EditDeleteRange
)

func (k EditKind) String() string {
	switch k {
	case EditAddTable:
		return "addTable"
	case EditDeleteRange:
		return "deleteRange"
	default:
		return fmt.Sprintf("EditKind(%d)", int(k))
	}
}

// Edit is one structural mutation inside a batch. Row and column offsets are
// 0-based and half-open. A DeleteRange moves the cells below the range up
// within the deleted column span.
type Edit struct {
	Kind        EditKind
	Title       string
	TableID     int64
	StartRow    int
	EndRow      int
	StartColumn int
	EndColumn   int
}

func AddTable(title string) Edit {
	return Edit{Kind: EditAddTable, Title: title}
}

// DeleteRow removes columns [startColumn, endColumn) of the 1-based row and
// shifts the rows below it up.
func DeleteRow(tableID int64, row, startColumn, endColumn int) Edit {
	return Edit{
		Kind:        EditDeleteRange,
		TableID:     tableID,
		StartRow:    row - 1,
		EndRow:      row,
		StartColumn: startColumn,
		EndColumn:   endColumn,
	}
}
