package sheets

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

const (
	spreadsheetTitle = "Activity Ideas"
	writeRange       = "Sheet1!A1"
	urlPrefix        = "https://docs.google.com/spreadsheets/d/"
)

// ErrNoCredentials is returned when no service account file is configured.
var ErrNoCredentials = errors.New("google sheets credentials not configured (integrations.sheets_credentials_file)")

var header = []any{"Name", "Location", "Description", "Price", "Opening Hours", "Category", "URL"}

// Row is one activity to write.
type Row struct {
	Name         string `json:"name"`
	Location     string `json:"location"`
	Description  string `json:"description"`
	Price        string `json:"price"`
	OpeningHours string `json:"opening_hours"`
	Category     string `json:"category"`
	URL          string `json:"url"`
}

// Result identifies the spreadsheet that was written.
type Result struct {
	SpreadsheetID  string `json:"spreadsheet_id"`
	SpreadsheetURL string `json:"spreadsheet_url"`
	RowsUpdated    int64  `json:"rows_updated"`
}

// Writer saves activities to Google Sheets.
type Writer struct {
	svc *gsheets.Service
}

// NewWriter authenticates with a service account credentials file.
func NewWriter(ctx context.Context, credentialsFile string) (*Writer, error) {
	if credentialsFile == "" {
		return nil, ErrNoCredentials
	}
	return NewWriterWithOptions(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gsheets.SpreadsheetsScope),
	)
}

// NewWriterWithOptions builds a Writer from raw client options (for testing
// against a local endpoint).
func NewWriterWithOptions(ctx context.Context, opts ...option.ClientOption) (*Writer, error) {
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}
	return &Writer{svc: svc}, nil
}

// Save writes a header and one line per activity starting at A1. A new
// spreadsheet is created when spreadsheetID is empty. RowsUpdated carries
// the API's updated cell count.
func (w *Writer) Save(ctx context.Context, rows []Row, spreadsheetID string) (Result, error) {
	if spreadsheetID == "" {
		created, err := w.svc.Spreadsheets.Create(&gsheets.Spreadsheet{
			Properties: &gsheets.SpreadsheetProperties{Title: spreadsheetTitle},
		}).Fields("spreadsheetId").Context(ctx).Do()
		if err != nil {
			return Result{}, fmt.Errorf("creating spreadsheet: %w", err)
		}
		spreadsheetID = created.SpreadsheetId
	}

	values := make([][]any, 0, len(rows)+1)
	values = append(values, header)
	for _, r := range rows {
		values = append(values, []any{r.Name, r.Location, r.Description, r.Price, r.OpeningHours, r.Category, r.URL})
	}

	resp, err := w.svc.Spreadsheets.Values.Update(spreadsheetID, writeRange, &gsheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return Result{}, fmt.Errorf("writing to spreadsheet %s: %w", spreadsheetID, err)
	}

	return Result{
		SpreadsheetID:  spreadsheetID,
		SpreadsheetURL: urlPrefix + spreadsheetID,
		RowsUpdated:    resp.UpdatedCells,
	}, nil
}
