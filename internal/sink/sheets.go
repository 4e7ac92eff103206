package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ashureev/wealth-widget/internal/domain"
)

// DefaultSheetsRange targets columns A to F of the first sheet.
const DefaultSheetsRange = "A:F"

// SheetsConfig describes a Google Sheets destination.
type SheetsConfig struct {
	SpreadsheetID string
	Range         string
	// CredentialsFile is a service-account JSON key. When empty the
	// email/private-key pair is used.
	CredentialsFile     string
	ServiceAccountEmail string
	// PrivateKey may carry literal "\n" sequences as found in env files.
	PrivateKey string
}

// Sheets appends one row per lead: Timestamp, Name, AUM, Revenue, Email, Valuation.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	rng           string
}

// NewSheets authenticates with service-account credentials.
func NewSheets(ctx context.Context, cfg SheetsConfig) (*Sheets, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("spreadsheet id is required")
	}

	var opt option.ClientOption
	switch {
	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("parse credentials: %w", err)
		}
		opt = option.WithCredentials(creds)
	case cfg.ServiceAccountEmail != "" && cfg.PrivateKey != "":
		conf := &jwt.Config{
			Email:      cfg.ServiceAccountEmail,
			PrivateKey: []byte(strings.ReplaceAll(cfg.PrivateKey, `\n`, "\n")),
			Scopes:     []string{sheets.SpreadsheetsScope},
			TokenURL:   google.JWTTokenURL,
		}
		opt = option.WithTokenSource(conf.TokenSource(ctx))
	default:
		return nil, errors.New("sheets credentials missing: set a credentials file or service account email and private key")
	}

	svc, err := sheets.NewService(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewSheetsWithService(svc, cfg.SpreadsheetID, cfg.Range), nil
}

// NewSheetsWithService uses a prepared client.
func NewSheetsWithService(svc *sheets.Service, spreadsheetID, rng string) *Sheets {
	if rng == "" {
		rng = DefaultSheetsRange
	}
	return &Sheets{svc: svc, spreadsheetID: spreadsheetID, rng: rng}
}

// Name implements Sink.
func (s *Sheets) Name() string { return "sheets" }

// Submit appends the lead as a new row.
func (s *Sheets) Submit(ctx context.Context, rec domain.SubmissionRecord) error {
	row := &sheets.ValueRange{
		Values: [][]interface{}{{
			rec.Timestamp.Format(time.RFC3339),
			rec.Name,
			rec.AUM,
			rec.Revenue,
			rec.Email,
			rec.Valuation,
		}},
	}

	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.rng, row).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append sheet row: %w", err)
	}
	return nil
}
