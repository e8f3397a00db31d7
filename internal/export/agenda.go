package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"nailbook/internal/domain"
	"nailbook/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	agendaSheet  = "Agenda"
	summarySheet = "Resumo"
)

var agendaHeaders = []string{
	"Data", "Horário", "Serviço", "Cliente", "Telefone", "E-mail",
	"Pagamento", "Status", "Total", "Sinal", "Observação",
}

var statusFill = map[string]string{
	models.StatusPending:   "#FFEB9C",
	models.StatusConfirmed: "#C6EFCE",
	models.StatusCompleted: "#DDEBF7",
	models.StatusCancelled: "#FFC7CE",
}

// Exporter builds XLSX agenda reports from the ledger.
type Exporter struct {
	repo domain.Repository
	dir  string
	now  domain.Clock
}

func NewExporter(repo domain.Repository, dir string) *Exporter {
	return &Exporter{repo: repo, dir: dir, now: time.Now}
}

// Write renders bookings in [from, to] into w. Empty bounds are open.
func (e *Exporter) Write(ctx context.Context, w io.Writer, from, to string) error {
	bookings, err := e.repo.FetchBookings(ctx, models.BookingFilter{
		IncludePending: true,
		DateFrom:       from,
		DateTo:         to,
	})
	if err != nil {
		return fmt.Errorf("error getting bookings: %w", err)
	}

	f, err := buildWorkbook(bookings, from, to)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveFile writes the report into the export directory and returns its path.
func (e *Exporter) SaveFile(ctx context.Context, from, to string) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	name := fmt.Sprintf("agenda_%s.xlsx", e.now().UTC().Format("20060102_150405"))
	path := filepath.Join(e.dir, name)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("error creating export file: %w", err)
	}
	defer file.Close()

	if err := e.Write(ctx, file, from, to); err != nil {
		return "", err
	}
	return path, nil
}

func buildWorkbook(bookings []*models.Booking, from, to string) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(agendaSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	if err := writeAgenda(f, bookings); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSummary(f, bookings, from, to); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeAgenda(f *excelize.File, bookings []*models.Booking) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#F4B6C2"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}

	for i, h := range agendaHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(agendaSheet, cell, h)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(agendaHeaders))
	_ = f.SetCellStyle(agendaSheet, "A1", lastCol+"1", headerStyle)

	styles := make(map[string]int, len(statusFill))
	for status, color := range statusFill {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return err
		}
		styles[status] = id
	}

	for i, b := range bookings {
		row := i + 2
		values := []interface{}{
			b.Date, b.Time, serviceLabel(b), b.CustomerName, b.CustomerPhone, b.CustomerEmail,
			paymentLabel(b), b.Status, b.TotalAmount, b.DepositAmount, b.Note,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(agendaSheet, cell, &values); err != nil {
			return fmt.Errorf("error writing row %d: %w", row, err)
		}
		if style, ok := styles[b.Status]; ok {
			statusCell, _ := excelize.CoordinatesToCellName(8, row)
			_ = f.SetCellStyle(agendaSheet, statusCell, statusCell, style)
		}
	}

	_ = f.SetColWidth(agendaSheet, "A", "B", 12)
	_ = f.SetColWidth(agendaSheet, "C", "F", 22)
	_ = f.SetColWidth(agendaSheet, "G", "J", 12)
	_ = f.SetColWidth(agendaSheet, "K", "K", 30)
	return f.SetPanes(agendaSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

type daySummary struct {
	count    int
	revenue  float64
	received float64
}

func writeSummary(f *excelize.File, bookings []*models.Booking, from, to string) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	period := "Período: todos"
	if from != "" || to != "" {
		period = fmt.Sprintf("Período: %s - %s", orDash(from), orDash(to))
	}
	_ = f.SetCellValue(summarySheet, "A1", period)
	_ = f.MergeCell(summarySheet, "A1", "D1")

	header := []interface{}{"Data", "Agendamentos", "Receita", "Recebido"}
	if err := f.SetSheetRow(summarySheet, "A2", &header); err != nil {
		return err
	}

	days := make(map[string]*daySummary)
	for _, b := range bookings {
		if b.IsMaintenance || b.Status == models.StatusCancelled || b.Status == models.StatusPending {
			continue
		}
		d, ok := days[b.Date]
		if !ok {
			d = &daySummary{}
			days[b.Date] = d
		}
		d.count++
		d.revenue += b.TotalAmount
		if b.Status == models.StatusCompleted {
			d.received += b.TotalAmount
		} else {
			d.received += b.AmountDue()
		}
	}

	dates := make([]string, 0, len(days))
	for date := range days {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for i, date := range dates {
		d := days[date]
		row := []interface{}{date, d.count, d.revenue, d.received}
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}

	titleStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	_ = f.SetCellStyle(summarySheet, "A1", "A1", titleStyle)
	return f.SetColWidth(summarySheet, "A", "D", 16)
}

func serviceLabel(b *models.Booking) string {
	if b.IsMaintenance {
		return "manutenção"
	}
	return b.ServiceID
}

func paymentLabel(b *models.Booking) string {
	switch b.PaymentOption {
	case models.PaymentOptionFull:
		return "integral"
	case models.PaymentOptionDeposit:
		return "sinal"
	}
	return ""
}

func orDash(s string) string {
	if s == "" {
		return "..."
	}
	return s
}
