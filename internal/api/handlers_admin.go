package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"nailbook/internal/models"
	"nailbook/internal/service"

	"github.com/go-chi/chi/v5"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *HTTPServer) writeAdminError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := adminError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Admin request failed")
	}
	writeError(w, status, msg)
}

func (s *HTTPServer) handleAdminBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includePending, _ := strconv.ParseBool(q.Get("include_pending"))
	filter := models.BookingFilter{
		IncludePending: includePending,
		Status:         q.Get("status"),
		DateFrom:       q.Get("from"),
		DateTo:         q.Get("to"),
	}
	for _, d := range []string{filter.DateFrom, filter.DateTo} {
		if d != "" && !models.ValidDate(d) {
			writeError(w, http.StatusBadRequest, msgInvalidDate)
			return
		}
	}

	list, err := s.deps.Bookings.ListBookings(r.Context(), filter)
	if err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": list})
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !models.ValidStatus(body.Status) {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	booking, err := s.deps.Bookings.UpdateStatus(r.Context(), chi.URLParam(r, "id"), body.Status, principalFrom(r.Context()).Name)
	if err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleAdminAvailability(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Schedule.View(r.Context())
	if err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"availability": view})
}

func (s *HTTPServer) handleToggleDay(w http.ResponseWriter, r *http.Request) {
	day, err := s.deps.Schedule.ToggleDay(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

func (s *HTTPServer) handleReplaceSlots(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Slots []string `json:"slots"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	day, err := s.deps.Schedule.ReplaceSlots(r.Context(), chi.URLParam(r, "date"), body.Slots)
	if err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

func (s *HTTPServer) handleToggleSlot(w http.ResponseWriter, r *http.Request) {
	day, err := s.deps.Schedule.ToggleSlot(r.Context(), chi.URLParam(r, "date"), chi.URLParam(r, "time"))
	if err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

func (s *HTTPServer) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	var req service.MaintenanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	booking, err := s.deps.Schedule.ScheduleMaintenance(r.Context(), req)
	if err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var svc models.Service
	if err := json.NewDecoder(r.Body).Decode(&svc); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if err := s.deps.Catalog.CreateService(r.Context(), &svc); err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

func (s *HTTPServer) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	var svc models.Service
	if err := json.NewDecoder(r.Body).Decode(&svc); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	svc.ID = chi.URLParam(r, "id")
	if err := s.deps.Catalog.UpdateService(r.Context(), &svc); err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (s *HTTPServer) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Catalog.DeleteService(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handlePriceMapping(w http.ResponseWriter, r *http.Request) {
	var mapping models.PriceMapping
	if err := json.NewDecoder(r.Body).Decode(&mapping); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	mapping.ServiceID = chi.URLParam(r, "id")
	if err := s.deps.Catalog.SetPriceMapping(r.Context(), &mapping); err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapping)
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Bookings.Stats(r.Context())
	if err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	for _, d := range []string{from, to} {
		if d != "" && !models.ValidDate(d) {
			writeError(w, http.StatusBadRequest, msgInvalidDate)
			return
		}
	}

	var buf bytes.Buffer
	if err := s.deps.Exporter.Write(r.Context(), &buf, from, to); err != nil {
		s.writeAdminError(w, r, err)
		return
	}

	name := fmt.Sprintf("agenda_%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
