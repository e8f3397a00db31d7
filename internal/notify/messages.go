package notify

import (
	"fmt"
	"strings"
	"time"

	"nailbook/internal/events"
	"nailbook/internal/models"
)

// displayDate renders an ISO date as DD/MM/YYYY.
func displayDate(date string) string {
	t, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format("02/01/2006")
}

func money(v float64) string {
	return strings.Replace(fmt.Sprintf("R$ %.2f", v), ".", ",", 1)
}

// adminText is the studio-side summary of a booking event.
func adminText(eventType string, b *models.Booking) string {
	var title string
	switch eventType {
	case events.EventBookingConfirmed:
		title = "✅ Pagamento confirmado"
	case events.EventBookingCancelled:
		title = "❌ Agendamento cancelado"
	case events.EventMaintenanceScheduled:
		title = "🛠 Manutenção agendada"
	default:
		title = "📌 " + eventType
	}

	var sb strings.Builder
	sb.WriteString(title + "\n\n")
	fmt.Fprintf(&sb, "Cliente: %s\n", b.CustomerName)
	if b.CustomerPhone != "" {
		fmt.Fprintf(&sb, "Telefone: %s\n", b.CustomerPhone)
	}
	fmt.Fprintf(&sb, "Data: %s às %s\n", displayDate(b.Date), b.Time)
	if !b.IsMaintenance {
		fmt.Fprintf(&sb, "Serviço: %s\n", b.ServiceID)
		fmt.Fprintf(&sb, "Total: %s (pago agora: %s)\n", money(b.TotalAmount), money(b.AmountDue()))
	}
	if b.Note != "" {
		fmt.Fprintf(&sb, "Obs.: %s\n", b.Note)
	}
	return sb.String()
}

// customerSubject and customerText are sent to the customer by email and SMS.
func customerSubject(eventType string) string {
	switch eventType {
	case events.EventBookingConfirmed, events.EventMaintenanceScheduled:
		return "Seu agendamento está confirmado"
	case events.EventBookingCancelled:
		return "Seu agendamento foi cancelado"
	default:
		return "Atualização do seu agendamento"
	}
}

func customerText(eventType string, b *models.Booking) string {
	when := fmt.Sprintf("%s às %s", displayDate(b.Date), b.Time)
	switch eventType {
	case events.EventBookingConfirmed, events.EventMaintenanceScheduled:
		return fmt.Sprintf("Olá, %s! Seu horário em %s está confirmado. Chegue 10 minutos antes.", b.CustomerName, when)
	case events.EventBookingCancelled:
		return fmt.Sprintf("Olá, %s. Seu horário em %s foi cancelado. Em caso de dúvidas, fale conosco.", b.CustomerName, when)
	default:
		return fmt.Sprintf("Olá, %s. Houve uma atualização no seu horário em %s.", b.CustomerName, when)
	}
}
