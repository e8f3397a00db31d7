// Package slots resolves which dates and time labels a customer may book.
// Every function is pure: callers pass the loaded availability view and the
// booked-slot projection.
package slots

import (
	"time"

	"nailbook/internal/models"
)

// Store is the date-keyed availability view.
type Store map[string]*models.DayAvailability

// Occupancy indexes non-cancelled bookings by date and time label.
type Occupancy map[string]map[string]struct{}

func NewOccupancy(booked []models.BookedSlot) Occupancy {
	occ := make(Occupancy)
	for _, b := range booked {
		if b.Status == models.StatusCancelled {
			continue
		}
		occ.add(b.Date, b.Time)
	}
	return occ
}

func OccupancyFromBookings(bookings []*models.Booking) Occupancy {
	occ := make(Occupancy)
	for _, b := range bookings {
		if !b.Occupies() {
			continue
		}
		occ.add(b.Date, b.Time)
	}
	return occ
}

func (o Occupancy) add(date, label string) {
	day, ok := o[date]
	if !ok {
		day = make(map[string]struct{})
		o[date] = day
	}
	day[label] = struct{}{}
}

// Taken reports whether a non-cancelled booking holds the slot.
func (o Occupancy) Taken(date, label string) bool {
	_, ok := o[date][label]
	return ok
}

// OpenSlots returns the day's labels not held by any booking, ascending.
// A missing or closed day has no open slots.
func OpenSlots(store Store, occ Occupancy, date string) []string {
	day, ok := store[date]
	if !ok || day == nil || !day.Available {
		return []string{}
	}
	open := make([]string, 0, len(day.Slots))
	for _, label := range models.NormalizeSlots(day.Slots) {
		if !occ.Taken(date, label) {
			open = append(open, label)
		}
	}
	return open
}

// IsOpen reports whether one label on a date can still be booked.
func IsOpen(store Store, occ Occupancy, date, label string) bool {
	for _, s := range OpenSlots(store, occ, date) {
		if s == label {
			return true
		}
	}
	return false
}

// Window bounds the rolling list of bookable dates.
type Window struct {
	Days          int
	ScanLimit     int
	ClosedWeekday time.Weekday
}

func DefaultWindow() Window {
	return Window{
		Days:          models.DefaultWindowDays,
		ScanLimit:     models.DefaultScanLimitDays,
		ClosedWeekday: time.Sunday,
	}
}

// BookableDates scans forward from the day after today and collects up to
// w.Days dates that are open with at least one free slot, giving up after
// w.ScanLimit calendar days.
func BookableDates(store Store, occ Occupancy, today time.Time, w Window) []string {
	dates := make([]string, 0, w.Days)
	for i := 1; i <= w.ScanLimit && len(dates) < w.Days; i++ {
		d := addDays(today, i)
		if d.Weekday() == w.ClosedWeekday {
			continue
		}
		key := d.Format(models.DateLayout)
		if len(OpenSlots(store, occ, key)) > 0 {
			dates = append(dates, key)
		}
	}
	return dates
}

// Projection describes the default days injected at load time.
type Projection struct {
	Days          int
	Slots         []string
	ClosedWeekday time.Weekday
}

func DefaultProjection() Projection {
	return Projection{
		Days:          models.DefaultProjectionDays,
		Slots:         models.DefaultSlots,
		ClosedWeekday: time.Sunday,
	}
}

// Project returns a copy of store where each date from today through
// p.Days-1 days ahead that has no record and is not the closed weekday gets
// an open day with the default slots. Stored records are never replaced.
func Project(store Store, today time.Time, p Projection) Store {
	view := make(Store, len(store)+p.Days)
	for date, day := range store {
		view[date] = day.Clone()
	}
	for i := 0; i < p.Days; i++ {
		d := addDays(today, i)
		if d.Weekday() == p.ClosedWeekday {
			continue
		}
		key := d.Format(models.DateLayout)
		if _, ok := view[key]; ok {
			continue
		}
		view[key] = &models.DayAvailability{
			Date:      key,
			Available: true,
			Slots:     models.NormalizeSlots(p.Slots),
		}
	}
	return view
}

// addDays moves by calendar days in t's location, immune to DST shifts.
func addDays(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+n, 12, 0, 0, 0, t.Location())
}
