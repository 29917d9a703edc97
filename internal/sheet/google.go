package sheet

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// GoogleSink writes dashboard rows to worksheets of a single Google
// spreadsheet, authenticated with a service-account credentials file.
type GoogleSink struct {
	svc           *sheets.Service
	spreadsheetID string

	mu       sync.Mutex
	sheetIDs map[string]int64 // worksheet title -> numeric sheet id
}

var styleColors = map[Style]*sheets.Color{
	StylePositive: {Red: 0.8, Green: 1, Blue: 0.8},
	StyleNegative: {Red: 1, Green: 0.8, Blue: 0.8},
	StyleNeutral:  {Red: 1, Green: 1, Blue: 1},
}

func NewGoogleSink(ctx context.Context, spreadsheetID, credsFile string) (*GoogleSink, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("google sink: spreadsheet id is empty")
	}
	svc, err := sheets.NewService(ctx, option.WithCredentialsFile(credsFile))
	if err != nil {
		return nil, fmt.Errorf("google sink: init service: %w", err)
	}
	return &GoogleSink{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetIDs:      make(map[string]int64),
	}, nil
}

func (g *GoogleSink) ReadAllRows(ctx context.Context, sheet string) ([][]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, sheet).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read rows of %q: %w", sheet, err)
	}
	out := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, 0, len(row))
		for _, v := range row {
			cells = append(cells, fmt.Sprint(v))
		}
		out = append(out, cells)
	}
	return out, nil
}

func (g *GoogleSink) WriteRange(ctx context.Context, sheet, rng string, values []any) error {
	vr := &sheets.ValueRange{Values: [][]any{values}}
	_, err := g.svc.Spreadsheets.Values.
		Update(g.spreadsheetID, sheet+"!"+rng, vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s!%s: %w", sheet, rng, err)
	}
	return nil
}

func (g *GoogleSink) WriteFormula(ctx context.Context, sheet, cell, formula string) error {
	return g.WriteRange(ctx, sheet, cell, []any{formula})
}

func (g *GoogleSink) ApplyStyle(ctx context.Context, sheet, rng string, style Style) error {
	color, ok := styleColors[style]
	if !ok {
		color = styleColors[StyleNeutral]
	}
	sp, err := parseSpan(rng)
	if err != nil {
		return err
	}
	sheetID, err := g.sheetID(ctx, sheet)
	if err != nil {
		return err
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    int64(sp.Row - 1),
					EndRowIndex:      int64(sp.Row),
					StartColumnIndex: int64(sp.StartCol),
					EndColumnIndex:   int64(sp.EndCol + 1),
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{BackgroundColor: color},
				},
				Fields: "userEnteredFormat.backgroundColor",
			},
		}},
	}
	if _, err := g.svc.Spreadsheets.BatchUpdate(g.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("style %s!%s: %w", sheet, rng, err)
	}
	return nil
}

func (g *GoogleSink) sheetID(ctx context.Context, title string) (int64, error) {
	g.mu.Lock()
	if id, ok := g.sheetIDs[title]; ok {
		g.mu.Unlock()
		return id, nil
	}
	g.mu.Unlock()

	meta, err := g.svc.Spreadsheets.Get(g.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("spreadsheet metadata: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range meta.Sheets {
		if s.Properties != nil {
			g.sheetIDs[s.Properties.Title] = s.Properties.SheetId
		}
	}
	id, ok := g.sheetIDs[title]
	if !ok {
		return 0, fmt.Errorf("worksheet %q not found", title)
	}
	return id, nil
}

func (g *GoogleSink) Close() error { return nil }
