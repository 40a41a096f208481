package crm

import (
	"fmt"
	"sort"
	"time"
)

const slotLayout = "15:04"

// BusinessDay describes the bookable window for a single day.
type BusinessDay struct {
	Open     string // inclusive, HH:MM
	Close    string // exclusive, HH:MM
	Interval time.Duration
}

// DefaultBusinessDay is 08:00–17:00 in 30 minute steps.
var DefaultBusinessDay = BusinessDay{Open: "08:00", Close: "17:00", Interval: 30 * time.Minute}

// Slots enumerates every start time in the window.
func (d BusinessDay) Slots() ([]string, error) {
	open, err := time.Parse(slotLayout, d.Open)
	if err != nil {
		return nil, fmt.Errorf("crm: parse open time: %w", err)
	}
	closing, err := time.Parse(slotLayout, d.Close)
	if err != nil {
		return nil, fmt.Errorf("crm: parse close time: %w", err)
	}
	if d.Interval <= 0 {
		return nil, fmt.Errorf("crm: slot interval must be positive")
	}

	var out []string
	for cur := open; cur.Before(closing); cur = cur.Add(d.Interval) {
		out = append(out, cur.Format(slotLayout))
	}
	return out, nil
}

// Available returns the window's slots minus the booked start times, sorted.
func (d BusinessDay) Available(booked map[string]struct{}) ([]string, error) {
	all, err := d.Slots()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for _, slot := range all {
		if _, taken := booked[slot]; taken {
			continue
		}
		out = append(out, slot)
	}
	sort.Strings(out)
	return out, nil
}

// slotOn combines a HH:MM slot with the calendar day of now in loc.
func slotOn(slot string, now time.Time, loc *time.Location) (time.Time, error) {
	clock, err := time.Parse(slotLayout, slot)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), clock.Hour(), clock.Minute(), 0, 0, loc), nil
}
