package models

import (
	"sort"
	"time"
)

// DayAvailability describes whether the studio is open on a date and which
// time labels are offered that day.
type DayAvailability struct {
	Date      string   `json:"date"`
	Available bool     `json:"available"`
	Slots     []string `json:"slots"`
}

// Clone returns a deep copy so callers can mutate without touching the loaded view.
func (d *DayAvailability) Clone() *DayAvailability {
	if d == nil {
		return nil
	}
	return &DayAvailability{
		Date:      d.Date,
		Available: d.Available,
		Slots:     append([]string(nil), d.Slots...),
	}
}

func (d *DayAvailability) HasSlot(label string) bool {
	if d == nil {
		return false
	}
	for _, s := range d.Slots {
		if s == label {
			return true
		}
	}
	return false
}

// WithSlot returns the normalized slot set with label added.
func (d *DayAvailability) WithSlot(label string) []string {
	return NormalizeSlots(append(append([]string(nil), d.Slots...), label))
}

// WithoutSlot returns the normalized slot set with label removed.
func (d *DayAvailability) WithoutSlot(label string) []string {
	out := make([]string, 0, len(d.Slots))
	for _, s := range d.Slots {
		if s != label {
			out = append(out, s)
		}
	}
	return NormalizeSlots(out)
}

// NormalizeSlots sorts labels ascending and drops duplicates and blanks.
// HH:MM labels sort correctly as strings.
func NormalizeSlots(slots []string) []string {
	seen := make(map[string]struct{}, len(slots))
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ValidTimeLabel reports whether label is a HH:MM time of day.
func ValidTimeLabel(label string) bool {
	if len(label) != len(TimeLayout) {
		return false
	}
	_, err := time.Parse(TimeLayout, label)
	return err == nil
}

// ValidDate reports whether date is an ISO YYYY-MM-DD calendar date.
func ValidDate(date string) bool {
	if len(date) != len(DateLayout) {
		return false
	}
	_, err := time.Parse(DateLayout, date)
	return err == nil
}

// BookedSlot is the public projection of a booking: no customer data.
type BookedSlot struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Status string `json:"status"`
}
