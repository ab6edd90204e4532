package models

import "time"

// Caregiver is a person who can be placed on shifts
type Caregiver struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	MaxHours       float64  `json:"maxHours,omitempty"` // 0 means no weekly cap
	AssignedHours  float64  `json:"assignedHours"`
	AssignedShifts []string `json:"assignedShifts"`
}

// Shift is a time slot at a home that needs one caregiver
type Shift struct {
	ID       string    `json:"id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Assigned string    `json:"assigned,omitempty"`
}

// Assignment is an existing caregiver-shift pairing
type Assignment struct {
	ShiftID     string `json:"shiftId"`
	CaregiverID string `json:"caregiverId"`
}

// Candidate is one ranked entry for an open shift
type Candidate struct {
	CaregiverID   string   `json:"caregiverId"`
	Name          string   `json:"name"`
	AssignedHours float64  `json:"assignedHours"`
	Eligible      bool     `json:"eligible"`
	Reasons       []string `json:"reasons,omitempty"`
}

// ConflictReason explains why nobody could be placed on a shift
type ConflictReason struct {
	ShiftID string   `json:"shiftId"`
	Reasons []string `json:"reasons"`
}

// CaregiverHours is one row of the caregiver-hours report
type CaregiverHours struct {
	CaregiverID string  `json:"caregiverId" csv:"caregiver_id"`
	Name        string  `json:"name" csv:"name"`
	Shifts      int     `json:"shifts" csv:"shifts"`
	Hours       float64 `json:"hours" csv:"hours"`
}
