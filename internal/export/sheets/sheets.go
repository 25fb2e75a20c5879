// Package sheets exports a user's transactions to a Google Sheet. Each export
// replaces the sheet contents with a header row plus one row per transaction.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"

	"smartbudget/internal/core"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Header is the first row written to the sheet.
var Header = []any{"Date", "Type", "Amount", "Category", "Note"}

// Config selects the spreadsheet and how to authenticate. A service account
// wins over an OAuth client when both are set.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountFile string
	OAuthClientFile    string
	OAuthClientJSON    string
	OAuthTokenFile     string
	OAuthTokenJSON     string
}

// Values is the part of the Sheets API the exporter uses.
type Values interface {
	Clear(ctx context.Context, spreadsheetID, rng string) error
	Update(ctx context.Context, spreadsheetID, rng string, rows [][]any) error
}

// Source reads the data to export.
type Source interface {
	ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error)
	ListCategories(ctx context.Context, userID string) ([]core.Category, error)
}

type Exporter struct {
	values        Values
	source        Source
	spreadsheetID string
	sheetName     string
}

func NewExporter(values Values, source Source, spreadsheetID, sheetName string) *Exporter {
	return &Exporter{
		values:        values,
		source:        source,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}
}

// New authenticates against the Sheets API and returns a ready exporter.
func New(ctx context.Context, cfg Config, source Source, opts ...option.ClientOption) (*Exporter, error) {
	svc, err := NewService(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return NewExporter(APIValues{svc: svc}, source, cfg.SpreadsheetID, cfg.SheetName), nil
}

// Export overwrites the sheet with userID's transactions and returns how many
// rows were written, excluding the header.
func (e *Exporter) Export(ctx context.Context, userID string) (int, error) {
	txs, err := e.source.ListTransactions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list transactions: %w", err)
	}
	cats, err := e.source.ListCategories(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list categories: %w", err)
	}

	rows := BuildRows(txs, cats)
	if err := e.values.Clear(ctx, e.spreadsheetID, e.sheetName+"!A:E"); err != nil {
		return 0, fmt.Errorf("clear sheet: %w", err)
	}
	if err := e.values.Update(ctx, e.spreadsheetID, e.sheetName+"!A1", rows); err != nil {
		return 0, fmt.Errorf("write sheet: %w", err)
	}

	slog.InfoContext(ctx, "Transactions exported",
		"component", "export",
		"user_id", userID,
		"count", len(rows)-1,
		"sheet", e.sheetName)
	return len(rows) - 1, nil
}

// BuildRows renders the header and one row per transaction, oldest first.
// Unknown categories are written as "Uncategorized".
func BuildRows(txs []core.Transaction, cats []core.Category) [][]any {
	names := make(map[int64]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}

	sorted := append([]core.Transaction(nil), txs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	rows := make([][]any, 0, len(sorted)+1)
	rows = append(rows, Header)
	for _, t := range sorted {
		category, ok := names[t.CategoryID]
		if !ok {
			category = "Uncategorized"
		}
		rows = append(rows, []any{
			t.Date.Format("2006-01-02"),
			string(t.Kind),
			core.FormatAmount(t.Amount),
			category,
			t.Note,
		})
	}
	return rows
}

// APIValues implements Values on top of the generated Sheets client.
type APIValues struct {
	svc *gsheet.Service
}

func NewAPIValues(svc *gsheet.Service) APIValues {
	return APIValues{svc: svc}
}

func (v APIValues) Clear(ctx context.Context, spreadsheetID, rng string) error {
	_, err := v.svc.Spreadsheets.Values.Clear(spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (v APIValues) Update(ctx context.Context, spreadsheetID, rng string, rows [][]any) error {
	vr := &gsheet.ValueRange{Values: rows}
	_, err := v.svc.Spreadsheets.Values.Update(spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}

// NewService builds a Sheets client from a service account or an OAuth
// client plus saved token (see cmd/oauth-init).
func NewService(ctx context.Context, cfg Config, opts ...option.ClientOption) (*gsheet.Service, error) {
	switch {
	case cfg.ServiceAccountFile != "":
		credentialsJSON, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		opts = append(opts,
			option.WithCredentialsJSON(credentialsJSON),
			option.WithScopes(gsheet.SpreadsheetsScope))

	case cfg.OAuthClientFile != "" || cfg.OAuthClientJSON != "":
		client, err := oauthClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithHTTPClient(client))

	default:
		return nil, errors.New("missing sheets credentials (service account file or OAuth client)")
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

func oauthClient(ctx context.Context, cfg Config) (*http.Client, error) {
	clientJSON, err := readSecret(cfg.OAuthClientJSON, cfg.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client: %w", err)
	}

	tokenJSON, err := readSecret(cfg.OAuthTokenJSON, cfg.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token (run oauth-init first): %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	return oauthCfg.Client(ctx, &tok), nil
}

func readSecret(inline, file string) ([]byte, error) {
	if strings.TrimSpace(inline) != "" {
		return []byte(inline), nil
	}
	if file == "" {
		return nil, errors.New("not configured")
	}
	return os.ReadFile(file)
}
