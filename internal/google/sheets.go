package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/auth"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/sheets/v4"

	"github.com/digitaldrywood/inventory/internal/inventory"
)

// SheetsClient is the Google Sheets implementation of inventory.Backend.
type SheetsClient struct {
	service *sheets.Service
}

func NewSheetsClient(service *sheets.Service) *SheetsClient {
	return &SheetsClient{
		service: service,
	}
}

// URL is the browser address of a spreadsheet.
func URL(spreadsheetID string) string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit", spreadsheetID)
}

func (s *SheetsClient) CreateSpreadsheet(ctx context.Context, title string) (string, error) {
	spreadsheet, err := s.service.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: title},
	}).Context(ctx).Do()
	if err != nil {
		return "", classify("unable to create spreadsheet", err)
	}

	return spreadsheet.SpreadsheetId, nil
}

func (s *SheetsClient) Tables(ctx context.Context, spreadsheetID string) ([]inventory.Table, error) {
	spreadsheet, err := s.service.Spreadsheets.Get(spreadsheetID).
		Fields("sheets.properties(sheetId,title)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("unable to retrieve spreadsheet", err)
	}

	tables := make([]inventory.Table, 0, len(spreadsheet.Sheets))
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties == nil {
			continue
		}
		tables = append(tables, inventory.Table{
			ID:    sheet.Properties.SheetId,
			Title: sheet.Properties.Title,
		})
	}

	return tables, nil
}

func (s *SheetsClient) Values(ctx context.Context, spreadsheetID string, r inventory.Range) ([][]string, error) {
	resp, err := s.service.Spreadsheets.Values.Get(spreadsheetID, r.A1()).Context(ctx).Do()
	if err != nil {
		return nil, classify("unable to retrieve data from sheet", err)
	}

	values := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, len(row))
		for i := range row {
			cells[i] = getStringValue(row, i)
		}
		values = append(values, cells)
	}

	return values, nil
}

func (s *SheetsClient) Update(ctx context.Context, spreadsheetID string, r inventory.Range, rows [][]string) error {
	values := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		cells := make([]interface{}, len(row))
		for i, v := range row {
			cells[i] = v
		}
		values = append(values, cells)
	}

	valueRange := &sheets.ValueRange{
		Values: values,
	}

	_, err := s.service.Spreadsheets.Values.Update(spreadsheetID, r.A1(), valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return classify("unable to write data to sheet", err)
	}

	return nil
}

func (s *SheetsClient) BatchEdit(ctx context.Context, spreadsheetID string, edits []inventory.Edit) error {
	requests := make([]*sheets.Request, 0, len(edits))
	for _, e := range edits {
		rq, err := toRequest(e)
		if err != nil {
			return err
		}
		requests = append(requests, rq)
	}

	body := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}

	if _, err := s.service.Spreadsheets.BatchUpdate(spreadsheetID, body).Context(ctx).Do(); err != nil {
		return classify("unable to apply batch update", err)
	}

	return nil
}

func toRequest(e inventory.Edit) (*sheets.Request, error) {
	switch e.Kind {
	case inventory.EditAddTable:
		return &sheets.Request{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: e.Title},
			},
		}, nil

	case inventory.EditDeleteRange:
		return &sheets.Request{
			DeleteRange: &sheets.DeleteRangeRequest{
				Range: &sheets.GridRange{
					SheetId:          e.TableID,
					StartRowIndex:    int64(e.StartRow),
					EndRowIndex:      int64(e.EndRow),
					StartColumnIndex: int64(e.StartColumn),
					EndColumnIndex:   int64(e.EndColumn),
					// zero is a meaningful offset here
					ForceSendFields: []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
				},
				ShiftDimension: "ROWS",
			},
		}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported edit %v", inventory.ErrValidation, e.Kind)
	}
}

// classify tags an API error with its inventory error kind, keeping the
// original error in the chain.
func classify(msg string, err error) error {
	var retrieve *oauth2.RetrieveError
	var authErr *auth.Error
	if errors.Is(err, inventory.ErrAuthFailure) || errors.As(err, &retrieve) || errors.As(err, &authErr) {
		return fmt.Errorf("%s: %w: %w", msg, inventory.ErrAuthFailure, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w: %w", msg, inventory.ErrAuthFailure, err)
	}

	return fmt.Errorf("%s: %w: %w", msg, inventory.ErrStoreUnavailable, err)
}

func getStringValue(row []interface{}, index int) string {
	if len(row) > index {
		switch val := row[index].(type) {
		case nil:
			return ""
		case string:
			return val
		default:
			return fmt.Sprintf("%v", val)
		}
	}
	return ""
}
