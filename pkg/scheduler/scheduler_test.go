package scheduler

import (
	"testing"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/models"
)

func TestRank_PrefersFewestHours(t *testing.T) {
	start := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)

	caregivers := map[string]*models.Caregiver{
		"c1": {ID: "c1", Name: "Alice"},
		"c2": {ID: "c2", Name: "Bob"},
	}
	shifts := map[string]*models.Shift{
		"past": {ID: "past", Start: start.Add(-48 * time.Hour), End: start.Add(-40 * time.Hour)},
		"open": {ID: "open", Start: start, End: start.Add(4 * time.Hour)},
	}

	s := NewScheduler(caregivers, shifts)
	s.Prefill([]models.Assignment{{ShiftID: "past", CaregiverID: "c1"}})

	ranked := s.Rank("open")
	if len(ranked) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(ranked))
	}
	if ranked[0].CaregiverID != "c2" {
		t.Errorf("Expected c2 first, got %s", ranked[0].CaregiverID)
	}
	if caregivers["c1"].AssignedHours != 8.0 {
		t.Errorf("Expected c1 to have 8.0 hours, got %f", caregivers["c1"].AssignedHours)
	}
	if len(s.Conflicts) != 0 {
		t.Errorf("Expected no conflicts, got %v", s.Conflicts)
	}
}

func TestRank_Overlap(t *testing.T) {
	start1 := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	end1 := start1.Add(2 * time.Hour)

	start2 := start1.Add(1 * time.Hour)
	end2 := start2.Add(2 * time.Hour)

	caregivers := map[string]*models.Caregiver{
		"c1": {ID: "c1", Name: "Alice"},
	}
	shifts := map[string]*models.Shift{
		"s1": {ID: "s1", Start: start1, End: end1},
		"s2": {ID: "s2", Start: start2, End: end2},
	}

	s := NewScheduler(caregivers, shifts)
	s.Prefill([]models.Assignment{{ShiftID: "s1", CaregiverID: "c1"}})

	ranked := s.Rank("s2")
	if ranked[0].Eligible {
		t.Errorf("Expected c1 to be ineligible due to overlap")
	}
	if len(s.Conflicts) != 1 {
		t.Fatalf("Expected 1 conflict, got %d", len(s.Conflicts))
	}
	if s.Conflicts[0].Reasons[0] != "1 caregivers had overlapping shifts" {
		t.Errorf("Unexpected conflict reason %q", s.Conflicts[0].Reasons[0])
	}
}

func TestRank_MaxHours(t *testing.T) {
	start := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	caregivers := map[string]*models.Caregiver{
		"c1": {ID: "c1", MaxHours: 3},
	}
	shifts := map[string]*models.Shift{
		"s1": {ID: "s1", Start: start, End: start.Add(4 * time.Hour)},
	}

	ranked := NewScheduler(caregivers, shifts).Rank("s1")
	if ranked[0].Eligible {
		t.Errorf("Expected c1 to be capped by max hours")
	}
}

func TestOverlap_Adjacent(t *testing.T) {
	a := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	b := a.Add(2 * time.Hour)
	if Overlap(a, b, b, b.Add(time.Hour)) {
		t.Errorf("Expected back-to-back shifts not to overlap")
	}
}

func TestPayableHours(t *testing.T) {
	start := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	if got := PayableHours(start, start.Add(8*time.Hour), 30); got != 7.5 {
		t.Errorf("Expected 7.5 payable hours, got %f", got)
	}
	if got := PayableHours(start, start.Add(10*time.Minute), 30); got != 0 {
		t.Errorf("Expected payable hours to clamp at 0, got %f", got)
	}
	if got := AmountCents(2.5, 18.5); got != 4625 {
		t.Errorf("Expected 4625 cents, got %d", got)
	}
}

func TestFairnessScore(t *testing.T) {
	if got := FairnessScore([]float64{10, 10, 10}); got != 100 {
		t.Errorf("Expected even hours to score 100, got %f", got)
	}
	if got := FairnessScore([]float64{0, 0, 30}); got != 0 {
		t.Errorf("Expected skewed hours to clamp at 0, got %f", got)
	}
	if got := FairnessScore(nil); got != 100 {
		t.Errorf("Expected empty set to score 100, got %f", got)
	}
}

func TestWeekBounds(t *testing.T) {
	sunday := time.Date(2025, 3, 9, 23, 30, 0, 0, time.UTC)
	from, to := WeekBounds(sunday)
	if want := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC); !from.Equal(want) {
		t.Errorf("Expected week start %v, got %v", want, from)
	}
	if want := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC); !to.Equal(want) {
		t.Errorf("Expected week end %v, got %v", want, to)
	}
	if from2, _ := WeekBounds(from); !from2.Equal(from) {
		t.Errorf("Monday should start its own week, got %v", from2)
	}
}

func TestRank_WindowLimitsCountedHours(t *testing.T) {
	monday := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

	caregivers := map[string]*models.Caregiver{
		"c1": {ID: "c1", Name: "Alice", MaxHours: 10},
	}
	shifts := map[string]*models.Shift{
		"lastweek": {ID: "lastweek", Start: monday.Add(-30 * time.Hour), End: monday.Add(-22 * time.Hour)},
		"straddle": {ID: "straddle", Start: monday.Add(-2 * time.Hour), End: monday.Add(4 * time.Hour)},
		"open":     {ID: "open", Start: monday.Add(50 * time.Hour), End: monday.Add(57 * time.Hour)},
	}

	s := NewScheduler(caregivers, shifts)
	s.WindowStart, s.WindowEnd = WeekBounds(monday)
	s.Prefill([]models.Assignment{
		{ShiftID: "lastweek", CaregiverID: "c1"},
		{ShiftID: "straddle", CaregiverID: "c1"},
	})

	if got := caregivers["c1"].AssignedHours; got != 4 {
		t.Fatalf("Expected 4 hours inside the week, got %v", got)
	}
	ranked := s.Rank("open")
	if len(ranked) != 1 || ranked[0].Eligible {
		t.Errorf("Expected c1 to be capped, got %+v", ranked)
	}
}
