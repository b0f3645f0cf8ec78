// Package schedule holds the pure slot arithmetic for expanding a recurring
// template into concrete post slots. It has no storage dependencies so the
// frequency-allocation and placement rules can be tested directly.
package schedule

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"listing_poster/models"
)

var (
	// ErrNoMatchingDays means the template's days_of_week is empty or matches
	// no day, which is a configuration error rather than an empty result.
	ErrNoMatchingDays = errors.New("schedule: days_of_week matches no days")
)

// Slot is one generated post opportunity, before persistence.
type Slot struct {
	Date         time.Time // midnight of the slot's calendar day
	PostNumber   int       // 1-based sequence within the day
	ScheduledFor time.Time // base placement plus jitter
	Jitter       int       // applied jitter, seconds
}

// AllocateWeek spreads frequency posts across the matching weekdays of one
// week using largest-remainder allocation: every matching day gets the floor
// share, and the remainder goes to the earliest matching days of the week
// (Monday-anchored). The result maps weekday (0=Sunday) to post count.
func AllocateWeek(daysOfWeek []int, frequency int) map[int]int {
	counts := make(map[int]int)
	if frequency <= 0 || len(daysOfWeek) == 0 {
		return counts
	}

	// Order matching days chronologically within a Monday-anchored week.
	ordered := make([]int, 0, len(daysOfWeek))
	seen := make(map[int]bool)
	for _, d := range daysOfWeek {
		if d < 0 || d > 6 || seen[d] {
			continue
		}
		seen[d] = true
		ordered = append(ordered, d)
	}
	if len(ordered) == 0 {
		return counts
	}
	sort.Slice(ordered, func(i, j int) bool {
		// Monday-first ordering: Sunday (0) sorts last.
		oi := (ordered[i] + 6) % 7
		oj := (ordered[j] + 6) % 7
		return oi < oj
	})

	base := frequency / len(ordered)
	rem := frequency % len(ordered)
	for i, d := range ordered {
		counts[d] = base
		if i < rem {
			counts[d]++
		}
	}
	return counts
}

// ParseWindow parses an "HH:MM" clock string into hours and minutes.
func ParseWindow(s string) (hour, minute int, err error) {
	if _, perr := fmt.Sscanf(s, "%d:%d", &hour, &minute); perr != nil {
		return 0, 0, fmt.Errorf("parse window %q: %w", s, perr)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("parse window %q: out of range", s)
	}
	return hour, minute, nil
}

// Generate expands a template into slots for the half-open horizon
// [from, to). Day counts come from AllocateWeek over each week the horizon
// touches, so re-running over an overlapping horizon yields the same slots
// for the same days. Placement divides the day's time window into equal
// segments, one per slot, and offsets each slot from its segment start by a
// bounded random jitter.
//
// Inactive templates yield an empty result without error. An empty
// days_of_week is returned as ErrNoMatchingDays.
func Generate(t *models.ScheduleTemplate, from, to time.Time, rng *rand.Rand) ([]Slot, error) {
	if !t.IsActive {
		return nil, nil
	}
	if len(t.DaysOfWeek) == 0 {
		return nil, ErrNoMatchingDays
	}

	startH, startM, err := ParseWindow(t.WindowStart)
	if err != nil {
		return nil, err
	}
	endH, endM, err := ParseWindow(t.WindowEnd)
	if err != nil {
		return nil, err
	}
	windowLen := time.Duration(endH-startH)*time.Hour + time.Duration(endM-startM)*time.Minute
	if windowLen <= 0 {
		return nil, fmt.Errorf("schedule: window %s-%s is empty", t.WindowStart, t.WindowEnd)
	}

	counts := AllocateWeek(t.DaysOfWeek, t.Frequency)
	if len(counts) == 0 {
		return nil, ErrNoMatchingDays
	}

	var slots []Slot
	for day := dateOf(from); day.Before(to); day = day.AddDate(0, 0, 1) {
		n := counts[int(day.Weekday())]
		if n == 0 {
			continue
		}
		// Skip days before the template started or past its hard end.
		if day.Before(dateOf(t.StartedAt)) {
			continue
		}
		if t.EndsAt != nil && !day.Before(dateOf(*t.EndsAt)) {
			continue
		}

		windowOpen := day.Add(time.Duration(startH)*time.Hour + time.Duration(startM)*time.Minute)
		segment := windowLen / time.Duration(n)
		for i := 0; i < n; i++ {
			jitterMax := time.Duration(t.JitterSeconds) * time.Second
			if jitterMax > segment {
				jitterMax = segment
			}
			var jitter time.Duration
			if jitterMax > 0 && rng != nil {
				jitter = time.Duration(rng.Int63n(int64(jitterMax)))
			}
			at := windowOpen.Add(segment*time.Duration(i) + jitter)
			slots = append(slots, Slot{
				Date:         day,
				PostNumber:   i + 1,
				ScheduledFor: at,
				Jitter:       int(jitter / time.Second),
			})
		}
	}
	return slots, nil
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
