// Package export writes the process list into a Google spreadsheet.
package export

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"procbot/internal/storage"
	logx "procbot/pkg/logx"
)

var ErrNotConfigured = errors.New("export: spreadsheet id and credentials file are required")

const (
	DefaultWorksheet = "Processes"

	newSheetRows = 50
	newSheetCols = 6
)

var header = []string{"Name", "Owner", "Periodicity", "Deadline", "Reminder 1 (min)", "Reminder 2 (min)"}

type Config struct {
	SheetID         string
	CredentialsFile string
	Worksheet       string
}

// Spreadsheet is the subset of the Sheets API the exporter drives.
type Spreadsheet interface {
	HasWorksheet(ctx context.Context, title string) (bool, error)
	AddWorksheet(ctx context.Context, title string, rows, cols int64) error
	Clear(ctx context.Context, title string) error
	Write(ctx context.Context, title string, rows [][]string) error
}

type Exporter struct {
	sheet     Spreadsheet
	worksheet string
	log       logx.Logger
}

// New connects to the configured spreadsheet with service-account
// credentials. It fails with ErrNotConfigured before touching the network
// when either setting is missing.
func New(ctx context.Context, cfg Config, log logx.Logger) (*Exporter, error) {
	if cfg.SheetID == "" || cfg.CredentialsFile == "" {
		return nil, ErrNotConfigured
	}
	srv, err := sheets.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return NewWithSpreadsheet(&googleSheet{srv: srv, id: cfg.SheetID}, cfg.Worksheet, log), nil
}

func NewWithSpreadsheet(sheet Spreadsheet, worksheet string, log logx.Logger) *Exporter {
	if worksheet == "" {
		worksheet = DefaultWorksheet
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Exporter{sheet: sheet, worksheet: worksheet, log: log}
}

// Export replaces the worksheet contents with a header row and one row per
// process. The worksheet is created when it does not exist yet.
func (e *Exporter) Export(ctx context.Context, procs []storage.Process) (int, error) {
	exists, err := e.sheet.HasWorksheet(ctx, e.worksheet)
	if err != nil {
		return 0, fmt.Errorf("lookup worksheet %q: %w", e.worksheet, err)
	}
	if exists {
		if err := e.sheet.Clear(ctx, e.worksheet); err != nil {
			return 0, fmt.Errorf("clear worksheet %q: %w", e.worksheet, err)
		}
	} else {
		if err := e.sheet.AddWorksheet(ctx, e.worksheet, newSheetRows, newSheetCols); err != nil {
			return 0, fmt.Errorf("add worksheet %q: %w", e.worksheet, err)
		}
	}

	if err := e.sheet.Write(ctx, e.worksheet, Rows(procs)); err != nil {
		return 0, fmt.Errorf("write worksheet %q: %w", e.worksheet, err)
	}
	e.log.Info("processes exported",
		logx.String("worksheet", e.worksheet),
		logx.Int("rows", len(procs)),
		logx.Bool("created", !exists),
	)
	return len(procs), nil
}

// Rows renders the header plus one row per process. Missing reminder lead
// times are left blank.
func Rows(procs []storage.Process) [][]string {
	out := make([][]string, 0, len(procs)+1)
	out = append(out, append([]string(nil), header...))
	for _, p := range procs {
		out = append(out, []string{
			p.Name,
			p.OwnerName,
			p.Periodicity,
			p.Deadline.String(),
			reminderCell(p.Reminders, 0),
			reminderCell(p.Reminders, 1),
		})
	}
	return out
}

func reminderCell(r []int, i int) string {
	if i >= len(r) || r[i] <= 0 {
		return ""
	}
	return strconv.Itoa(r[i])
}
