package scheduler

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/models"
)

// Scheduler ranks caregivers against shifts using their existing assignments
type Scheduler struct {
	Caregivers map[string]*models.Caregiver
	Shifts     map[string]*models.Shift
	Conflicts  []models.ConflictReason

	// When set, only the part of a shift inside [WindowStart, WindowEnd)
	// counts toward a caregiver's hours.
	WindowStart time.Time
	WindowEnd   time.Time
}

// NewScheduler creates a new scheduler instance
func NewScheduler(caregivers map[string]*models.Caregiver, shifts map[string]*models.Shift) *Scheduler {
	return &Scheduler{
		Caregivers: caregivers,
		Shifts:     shifts,
	}
}

// DurationHours calculates the duration between two times in hours
func DurationHours(start, end time.Time) float64 {
	return end.Sub(start).Hours()
}

// WeekBounds returns the ISO week containing t, Monday 00:00 UTC to the next Monday.
func WeekBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	start := time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 7)
}

// HoursWithin is the part of [start, end) inside [from, to), in hours
func HoursWithin(start, end, from, to time.Time) float64 {
	if start.Before(from) {
		start = from
	}
	if end.After(to) {
		end = to
	}
	if !end.After(start) {
		return 0
	}
	return DurationHours(start, end)
}

func (s *Scheduler) hours(shift *models.Shift) float64 {
	if s.WindowStart.IsZero() || s.WindowEnd.IsZero() {
		return DurationHours(shift.Start, shift.End)
	}
	return HoursWithin(shift.Start, shift.End, s.WindowStart, s.WindowEnd)
}

// Overlap checks if two half-open time ranges overlap
func Overlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// PayableHours is the worked time minus the break, never negative
func PayableHours(start, end time.Time, breakMinutes int) float64 {
	worked := end.Sub(start) - time.Duration(breakMinutes)*time.Minute
	if worked < 0 {
		return 0
	}
	return worked.Hours()
}

// AmountCents converts hours at an hourly rate into whole cents
func AmountCents(hours, rate float64) int64 {
	return int64(math.Round(hours * rate * 100))
}

// Prefill records existing assignments
func (s *Scheduler) Prefill(assignments []models.Assignment) {
	for _, asgn := range assignments {
		cg, okCg := s.Caregivers[asgn.CaregiverID]
		shift, okShift := s.Shifts[asgn.ShiftID]

		if okCg && okShift {
			shift.Assigned = cg.ID
			cg.AssignedShifts = append(cg.AssignedShifts, shift.ID)
			cg.AssignedHours += s.hours(shift)
		}
	}
}

// WouldOverlap checks if a caregiver's existing shifts overlap with a new one
func (s *Scheduler) WouldOverlap(cg *models.Caregiver, shift *models.Shift) bool {
	for _, shiftID := range cg.AssignedShifts {
		existing, ok := s.Shifts[shiftID]
		if !ok || existing.ID == shift.ID {
			continue
		}
		if Overlap(existing.Start, existing.End, shift.Start, shift.End) {
			return true
		}
	}
	return false
}

// Rank orders every caregiver for a shift: eligible ones first by fewest
// assigned hours, then the ineligible ones with the reasons they were skipped.
func (s *Scheduler) Rank(shiftID string) []models.Candidate {
	shift, ok := s.Shifts[shiftID]
	if !ok {
		return nil
	}
	duration := s.hours(shift)

	out := make([]models.Candidate, 0, len(s.Caregivers))
	for _, cg := range s.Caregivers {
		var reasons []string
		if s.WouldOverlap(cg, shift) {
			reasons = append(reasons, "has an overlapping shift")
		}
		if cg.MaxHours > 0 && cg.AssignedHours+duration > cg.MaxHours {
			reasons = append(reasons, fmt.Sprintf("would exceed %.1f max hours", cg.MaxHours))
		}
		out = append(out, models.Candidate{
			CaregiverID:   cg.ID,
			Name:          cg.Name,
			AssignedHours: cg.AssignedHours,
			Eligible:      len(reasons) == 0,
			Reasons:       reasons,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Eligible != out[j].Eligible {
			return out[i].Eligible
		}
		if out[i].AssignedHours != out[j].AssignedHours {
			return out[i].AssignedHours < out[j].AssignedHours
		}
		return out[i].CaregiverID < out[j].CaregiverID
	})

	if len(out) == 0 || !out[0].Eligible {
		reasons := []string{"no caregivers found"}
		if len(out) > 0 {
			overlap, capped := 0, 0
			for _, c := range out {
				for _, r := range c.Reasons {
					if r == "has an overlapping shift" {
						overlap++
					} else {
						capped++
					}
				}
			}
			reasons = reasons[:0]
			if overlap > 0 {
				reasons = append(reasons, fmt.Sprintf("%d caregivers had overlapping shifts", overlap))
			}
			if capped > 0 {
				reasons = append(reasons, fmt.Sprintf("%d caregivers were at max hours", capped))
			}
		}
		s.Conflicts = append(s.Conflicts, models.ConflictReason{ShiftID: shiftID, Reasons: reasons})
	}
	return out
}

// CalculateFairnessScore returns a percentage (0-100) representing how evenly
// hours are distributed. 100% is perfectly fair (Standard Deviation = 0).
func (s *Scheduler) CalculateFairnessScore() float64 {
	hours := make([]float64, 0, len(s.Caregivers))
	for _, c := range s.Caregivers {
		hours = append(hours, c.AssignedHours)
	}
	return FairnessScore(hours)
}

// FairnessScore is CalculateFairnessScore over a plain list of hour totals
func FairnessScore(hours []float64) float64 {
	if len(hours) == 0 {
		return 100.0
	}

	var sum float64
	for _, h := range hours {
		sum += h
	}

	if sum == 0 {
		return 100.0 // Everyone having 0 hours is perfectly fair
	}

	mean := sum / float64(len(hours))

	var varianceSum float64
	for _, h := range hours {
		diff := h - mean
		varianceSum += diff * diff
	}
	stdDev := math.Sqrt(varianceSum / float64(len(hours)))

	// 100% means SD is 0. 0% means SD is >= mean.
	score := (1.0 - (stdDev / mean)) * 100.0
	if score < 0 {
		return 0.0
	}
	return score
}
