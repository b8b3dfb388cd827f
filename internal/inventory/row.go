package inventory

import (
	"strings"
	"time"
)

// TimestampLayout is the format of the timestamp column.
const TimestampLayout = "2006-01-02 15:04:05"

// Column offsets within a row. The order is fixed.
const (
	ColumnItem = iota
	ColumnLocation
	ColumnQuantity
	ColumnTimestamp

	columnCount
)

type Row struct {
	Item      string
	Location  string
	Quantity  string
	Timestamp string
}

func NewRow(item, location, quantity string, at time.Time) Row {
	return Row{
		Item:      item,
		Location:  location,
		Quantity:  quantity,
		Timestamp: at.Format(TimestampLayout),
	}
}

// RowFromCells maps positional cells onto a Row. Missing trailing cells are
// empty.
func RowFromCells(cells []string) Row {
	return Row{
		Item:      cell(cells, ColumnItem),
		Location:  cell(cells, ColumnLocation),
		Quantity:  cell(cells, ColumnQuantity),
		Timestamp: cell(cells, ColumnTimestamp),
	}
}

func (r Row) Cells() []string {
	return []string{r.Item, r.Location, r.Quantity, r.Timestamp}
}

// Matches reports whether a stored value equals a query once both are
// trimmed and case folded. Search and clear both use it.
func Matches(value, query string) bool {
	return strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(query))
}

func cell(cells []string, index int) string {
	if len(cells) > index {
		return cells[index]
	}
	return ""
}
