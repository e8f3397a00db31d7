package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"nailbook/internal/config"
	"nailbook/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	lastColumn     = "M"
	statusColumn   = "I"
	updatedColumn  = "M"
	timestampStyle = "02.01.2006 15:04"
)

var ErrRowNotFound = errors.New("booking row not found")

var agendaHeaders = []interface{}{
	"ID", "Data", "Hora", "Serviço", "Cliente", "Email", "Telefone",
	"Pagamento", "Status", "Status pagamento", "Total", "Sinal", "Atualizado",
}

// AgendaSheet mirrors the booking ledger into one Google Sheets tab.
type AgendaSheet struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	loc           *time.Location
	rowCache      map[string]int
	cacheMu       sync.RWMutex
}

func NewAgendaSheet(ctx context.Context, cfg config.GoogleConfig, loc *time.Location) (*AgendaSheet, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(cfg.GoogleCredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return newAgendaSheet(srv, cfg.AgendaSpreadsheetID, cfg.AgendaSheetName, loc), nil
}

func newAgendaSheet(srv *sheets.Service, spreadsheetID, sheetName string, loc *time.Location) *AgendaSheet {
	if sheetName == "" {
		sheetName = "Agenda"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AgendaSheet{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		loc:           loc,
		rowCache:      make(map[string]int),
	}
}

func (s *AgendaSheet) rangeOf(cells string) string {
	return s.sheetName + "!" + cells
}

// TestConnection проверяет доступ к таблице
func (s *AgendaSheet) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeOf("A1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// WarmUpCache rebuilds the booking id to row index from column A.
func (s *AgendaSheet) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeOf("A:A")).Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[string]int, len(resp.Values))
	for i, row := range resp.Values {
		if id := cellID(row); id != "" && i > 0 {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

// UpsertBooking updates the booking's row or appends a new one.
func (s *AgendaSheet) UpsertBooking(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return errors.New("booking is nil")
	}

	rowIdx, err := s.FindBookingRow(ctx, booking.ID)
	if errors.Is(err, ErrRowNotFound) {
		return s.appendBooking(ctx, booking)
	}
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rowRange(rowIdx), &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(booking)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *AgendaSheet) appendBooking(ctx context.Context, booking *models.Booking) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.rangeOf("A:A"), &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(booking)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return err
	}
	if resp.Updates != nil {
		if row, ok := firstRow(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(booking.ID, row)
		}
	}
	return nil
}

// UpdateBookingStatus rewrites the status and updated-at cells of a row.
func (s *AgendaSheet) UpdateBookingStatus(ctx context.Context, bookingID string, status string) error {
	rowIdx, err := s.FindBookingRow(ctx, bookingID)
	if err != nil {
		return err
	}

	cell := func(col string) string { return s.rangeOf(fmt.Sprintf("%s%d:%s%d", col, rowIdx, col, rowIdx)) }

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, cell(statusColumn), &sheets.ValueRange{
		Values: [][]interface{}{{status}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return err
	}

	now := time.Now().In(s.loc).Format(timestampStyle)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, cell(updatedColumn), &sheets.ValueRange{
		Values: [][]interface{}{{now}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// ReplaceAgenda clears the tab and writes the header plus every booking.
func (s *AgendaSheet) ReplaceAgenda(ctx context.Context, bookings []*models.Booking) error {
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.rangeOf("A:Z"), &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear agenda sheet: %w", err)
	}

	values := make([][]interface{}, 0, len(bookings)+1)
	values = append(values, agendaHeaders)
	for _, b := range bookings {
		values = append(values, s.rowValues(b))
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rangeOf("A1"), &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update agenda sheet: %w", err)
	}

	cache := make(map[string]int, len(bookings))
	for i, b := range bookings {
		cache[b.ID] = i + 2 // данные начинаются со второй строки
	}
	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

// FindBookingRow returns the 1-based row of a booking, using the cache first.
func (s *AgendaSheet) FindBookingRow(ctx context.Context, bookingID string) (int, error) {
	if bookingID == "" {
		return 0, errors.New("booking id is required")
	}
	if row, ok := s.getCachedRow(bookingID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeOf("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for i, row := range resp.Values {
		if cellID(row) == bookingID {
			s.setCachedRow(bookingID, i+1)
			return i + 1, nil
		}
	}
	return 0, ErrRowNotFound
}

func (s *AgendaSheet) rowRange(row int) string {
	return s.rangeOf(fmt.Sprintf("A%d:%s%d", row, lastColumn, row))
}

func (s *AgendaSheet) rowValues(b *models.Booking) []interface{} {
	service := b.ServiceID
	if b.IsMaintenance {
		service = "manutenção"
	}
	return []interface{}{
		b.ID,
		b.Date,
		b.Time,
		service,
		b.CustomerName,
		b.CustomerEmail,
		b.CustomerPhone,
		b.PaymentOption,
		b.Status,
		b.PaymentStatus,
		b.TotalAmount,
		b.DepositAmount,
		b.UpdatedAt.In(s.loc).Format(timestampStyle),
	}
}

func (s *AgendaSheet) getCachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *AgendaSheet) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func cellID(row []interface{}) string {
	if len(row) == 0 {
		return ""
	}
	if v, ok := row[0].(string); ok {
		return v
	}
	return fmt.Sprint(row[0])
}

// firstRow extracts 10 from "Agenda!A10:M10".
func firstRow(a1 string) (int, bool) {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	if i := strings.Index(a1, ":"); i >= 0 {
		a1 = a1[:i]
	}
	digits := strings.TrimLeft(a1, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	row, err := strconv.Atoi(digits)
	if err != nil || row <= 0 {
		return 0, false
	}
	return row, true
}
