package export

import (
	"context"
	"strings"

	"google.golang.org/api/sheets/v4"
)

type googleSheet struct {
	srv *sheets.Service
	id  string
}

func (g *googleSheet) HasWorksheet(ctx context.Context, title string) (bool, error) {
	ss, err := g.srv.Spreadsheets.Get(g.id).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return false, err
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return true, nil
		}
	}
	return false, nil
}

func (g *googleSheet) AddWorksheet(ctx context.Context, title string, rows, cols int64) error {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{
					Title: title,
					GridProperties: &sheets.GridProperties{
						RowCount:    rows,
						ColumnCount: cols,
					},
				},
			},
		}},
	}
	_, err := g.srv.Spreadsheets.BatchUpdate(g.id, req).Context(ctx).Do()
	return err
}

func (g *googleSheet) Clear(ctx context.Context, title string) error {
	_, err := g.srv.Spreadsheets.Values.Clear(g.id, a1Range(title, ""), &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (g *googleSheet) Write(ctx context.Context, title string, rows [][]string) error {
	values := make([][]interface{}, len(rows))
	for i, r := range rows {
		row := make([]interface{}, len(r))
		for j, c := range r {
			row[j] = c
		}
		values[i] = row
	}
	vr := &sheets.ValueRange{Values: values}
	_, err := g.srv.Spreadsheets.Values.Update(g.id, a1Range(title, "A1"), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// a1Range quotes the sheet title so titles with spaces or quotes work.
func a1Range(title, cell string) string {
	r := "'" + strings.ReplaceAll(title, "'", "''") + "'"
	if cell != "" {
		r += "!" + cell
	}
	return r
}
