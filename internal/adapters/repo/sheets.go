package repo

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"ready2rent-bot/internal/domain"
	"ready2rent-bot/internal/infra/metrics"
)

// Ranges over the 12 fixed columns of the first sheet.
const (
	headerRange = "A1:L1"
	dataRange   = "A2:L"
	appendRange = "A1"
)

// Sheets persists listings in a Google Sheets spreadsheet. The spreadsheet
// must be pre-created and shared with the service account; this adapter
// never creates one, so a quota-constrained identity cannot be surprised by
// Drive writes. Resolution and header bootstrap happen lazily on first use:
// an unreachable backend degrades single requests, it does not stop the
// process.
type Sheets struct {
	svc   *sheets.Service
	creds []byte
	name  string
	log   zerolog.Logger

	mu            sync.Mutex
	spreadsheetID string
	ready         bool
}

// SheetsConfig carries backend addressing and credentials.
type SheetsConfig struct {
	// SpreadsheetID is the stable identifier, preferred when set.
	SpreadsheetID string
	// SheetName is the human-readable fallback, resolved via Drive.
	SheetName string
	// Creds is a service-account JSON blob or a path to one.
	Creds string
}

// NewSheets builds the client. Credential material is configuration: a bad
// blob or unreadable file is an error here, before any network traffic.
func NewSheets(ctx context.Context, cfg SheetsConfig, log zerolog.Logger) (*Sheets, error) {
	creds, err := credentialsJSON(cfg.Creds)
	if err != nil {
		return nil, err
	}
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsJSON(creds),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("crear cliente de sheets: %w", err)
	}
	return &Sheets{
		svc:           svc,
		creds:         creds,
		name:          cfg.SheetName,
		log:           log,
		spreadsheetID: strings.TrimSpace(cfg.SpreadsheetID),
	}, nil
}

func credentialsJSON(creds string) ([]byte, error) {
	trimmed := strings.TrimSpace(creds)
	if trimmed == "" {
		return nil, fmt.Errorf("GOOGLE_CREDS_JSON vacío: define el blob JSON de la service account o una ruta a él")
	}
	if strings.HasPrefix(trimmed, "{") {
		return []byte(trimmed), nil
	}
	data, err := os.ReadFile(trimmed)
	if err != nil {
		return nil, fmt.Errorf("leer credenciales %q: %w", trimmed, err)
	}
	return data, nil
}

// open resolves the spreadsheet and bootstraps the header once. Failures
// are retried on the next call.
func (s *Sheets) open(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return s.spreadsheetID, nil
	}
	if s.spreadsheetID == "" {
		id, err := s.lookupByName(ctx)
		if err != nil {
			return "", err
		}
		s.spreadsheetID = id
	}
	if err := s.ensureHeader(ctx); err != nil {
		return "", err
	}
	s.ready = true
	return s.spreadsheetID, nil
}

func (s *Sheets) lookupByName(ctx context.Context) (string, error) {
	driveSvc, err := drive.NewService(ctx,
		option.WithCredentialsJSON(s.creds),
		option.WithScopes(drive.DriveMetadataReadonlyScope),
	)
	if err != nil {
		return "", fmt.Errorf("%w: crear cliente de drive: %v", domain.ErrBackendUnavailable, err)
	}
	query := fmt.Sprintf("name = '%s' and mimeType = 'application/vnd.google-apps.spreadsheet' and trashed = false",
		strings.ReplaceAll(s.name, "'", `\'`))
	start := time.Now()
	list, err := driveSvc.Files.List().Q(query).Fields("files(id)").PageSize(1).Context(ctx).Do()
	metrics.ObserveNetworkRequest("drive", "files_list", start, err)
	if err != nil || len(list.Files) == 0 {
		return "", fmt.Errorf("%w: no se pudo abrir la hoja %q. Crea la hoja y compártela con el client_email de la service account, o define SPREADSHEET_ID", domain.ErrBackendUnavailable, s.name)
	}
	return list.Files[0].Id, nil
}

// ensureHeader inserts the fixed header only when the first row is empty.
// An existing header, whatever its content, is never overwritten.
func (s *Sheets) ensureHeader(ctx context.Context) error {
	start := time.Now()
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, headerRange).Context(ctx).Do()
	metrics.ObserveNetworkRequest("sheets", "header_get", start, err)
	if err != nil {
		return fmt.Errorf("%w: leer cabecera: %v", domain.ErrBackendUnavailable, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}
	header := make([]interface{}, len(domain.RecordColumns))
	for i, col := range domain.RecordColumns {
		header[i] = col
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{header}}
	start = time.Now()
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, headerRange, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	metrics.ObserveNetworkRequest("sheets", "header_update", start, err)
	if err != nil {
		// Likely missing edit permission. Reads may still work.
		s.log.Warn().Err(err).Msg("no se pudo insertar la cabecera")
	}
	return nil
}

// Append adds one row in the fixed column order. The record is not
// guaranteed visible to concurrent readers before this returns.
func (s *Sheets) Append(ctx context.Context, rec domain.ListingRecord) error {
	id, err := s.open(ctx)
	if err != nil {
		return err
	}
	cells := rec.Row()
	row := make([]interface{}, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{row}}
	start := time.Now()
	_, err = s.svc.Spreadsheets.Values.Append(id, appendRange, vr).
		ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	metrics.ObserveNetworkRequest("sheets", "append", start, err)
	if err != nil {
		return fmt.Errorf("%w: append: %v", domain.ErrPersistence, err)
	}
	return nil
}

// ListAll reads every data row, excluding the header. Malformed rows degrade
// to records with absent fields instead of aborting the read.
func (s *Sheets) ListAll(ctx context.Context) ([]domain.ListingRecord, error) {
	id, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := s.svc.Spreadsheets.Values.Get(id, dataRange).Context(ctx).Do()
	metrics.ObserveNetworkRequest("sheets", "list_all", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: leer filas: %v", domain.ErrPersistence, err)
	}
	records := make([]domain.ListingRecord, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			row[i] = fmt.Sprint(cell)
		}
		records = append(records, domain.ParseRow(row))
	}
	return records, nil
}
