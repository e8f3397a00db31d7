package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"nailbook/internal/database"
	"nailbook/internal/payments"
	"nailbook/internal/service"
)

// Mensagens exibidas ao cliente.
const (
	msgPolicyRequired  = "É necessário aceitar a política de cancelamento."
	msgSlotUnavailable = "Este horário não está mais disponível. Escolha outro horário."
	msgTooManyAttempts = "Muitas tentativas. Tente novamente em alguns minutos."
	msgServiceNotFound = "Serviço não encontrado."
	msgPriceNotFound   = "Produto não encontrado no Stripe. Entre em contato com o suporte."
	msgPaymentLink     = "Erro ao gerar link de pagamento."
	msgBookingNotFound = "Agendamento não encontrado."
	msgInvalidStatus   = "Transição de status inválida."
	msgInvalidBody     = "Requisição inválida."
	msgInvalidDate     = "Data inválida. Use o formato AAAA-MM-DD."
	msgRateLimited     = "Muitas requisições. Aguarde um momento."
	msgUnauthorized    = "Não autorizado."
	msgForbidden       = "Permissão negada."
	msgWrongPassword   = "Senha incorreta."
	msgInternal        = "Erro interno. Tente novamente."
	msgNotReady        = "Serviço indisponível."
)

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// checkoutError maps an intake failure to a status and customer message.
// The payment backend's own message is shown verbatim when it sent one.
func checkoutError(err error) (int, string) {
	var linkErr *payments.LinkError
	var vErr *service.ValidationError
	switch {
	case errors.Is(err, service.ErrPolicyNotAccepted):
		return http.StatusBadRequest, msgPolicyRequired
	case errors.As(err, &vErr):
		return http.StatusBadRequest, validationMessage(vErr)
	case errors.Is(err, service.ErrTooManyAttempts):
		return http.StatusTooManyRequests, msgTooManyAttempts
	case errors.Is(err, database.ErrServiceNotFound):
		return http.StatusNotFound, msgServiceNotFound
	case errors.Is(err, service.ErrSlotUnavailable):
		return http.StatusConflict, msgSlotUnavailable
	case errors.Is(err, database.ErrPriceMappingNotFound):
		return http.StatusBadGateway, msgPriceNotFound
	case errors.As(err, &linkErr) && linkErr.Message != "":
		return http.StatusBadGateway, linkErr.Message
	case errors.As(err, &linkErr), errors.Is(err, service.ErrPaymentLink):
		return http.StatusBadGateway, msgPaymentLink
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// adminError maps editor and ledger failures.
func adminError(err error) (int, string) {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, validationMessage(vErr)
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, msgBookingNotFound
	case errors.Is(err, database.ErrServiceNotFound):
		return http.StatusNotFound, msgServiceNotFound
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict, msgInvalidStatus
	case errors.Is(err, service.ErrSlotUnavailable):
		return http.StatusConflict, msgSlotUnavailable
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

var fieldNames = map[string]string{
	"service_id":     "serviço",
	"date":           "data",
	"time":           "horário",
	"customer_name":  "nome",
	"customer_email": "e-mail",
	"customer_phone": "telefone",
	"payment_option": "forma de pagamento",
	"name":           "nome",
	"price":          "preço",
	"id":             "identificador",
	"slots":          "horários",
}

func validationMessage(err *service.ValidationError) string {
	name, ok := fieldNames[err.Field]
	if !ok {
		name = err.Field
	}
	return fmt.Sprintf("Campo inválido: %s.", name)
}
