package workflow

type ShiftStatus string

const (
	ShiftOpen       ShiftStatus = "OPEN"
	ShiftAssigned   ShiftStatus = "ASSIGNED"
	ShiftInProgress ShiftStatus = "IN_PROGRESS"
	ShiftCompleted  ShiftStatus = "COMPLETED"
	ShiftCancelled  ShiftStatus = "CANCELLED"
)

func (s ShiftStatus) Valid() bool {
	switch s {
	case ShiftOpen, ShiftAssigned, ShiftInProgress, ShiftCompleted, ShiftCancelled:
		return true
	}
	return false
}

type ShiftEvent string

const (
	ShiftConfirm  ShiftEvent = "confirm"
	ShiftStart    ShiftEvent = "start"
	ShiftComplete ShiftEvent = "complete"
	ShiftCancel   ShiftEvent = "cancel"
)

type ApplicationStatus string

const (
	AppApplied   ApplicationStatus = "APPLIED"
	AppOffered   ApplicationStatus = "OFFERED"
	AppAccepted  ApplicationStatus = "ACCEPTED"
	AppRejected  ApplicationStatus = "REJECTED"
	AppWithdrawn ApplicationStatus = "WITHDRAWN"
)

type ApplicationEvent string

const (
	AppOffer    ApplicationEvent = "offer"
	AppAccept   ApplicationEvent = "accept"
	AppReject   ApplicationEvent = "reject"
	AppWithdraw ApplicationEvent = "withdraw"
	AppReapply  ApplicationEvent = "reapply"
)

// Active reports whether the application still competes for its shift.
func (s ApplicationStatus) Active() bool {
	return s == AppApplied || s == AppOffered || s == AppAccepted
}

type TimesheetStatus string

const (
	TimesheetDraft     TimesheetStatus = "DRAFT"
	TimesheetSubmitted TimesheetStatus = "SUBMITTED"
	TimesheetApproved  TimesheetStatus = "APPROVED"
	TimesheetPaid      TimesheetStatus = "PAID"
)

type TimesheetEvent string

const (
	TimesheetSubmit  TimesheetEvent = "submit"
	TimesheetApprove TimesheetEvent = "approve"
	TimesheetSettle  TimesheetEvent = "settle"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentFailed     PaymentStatus = "FAILED"
)

type PaymentEvent string

const (
	PaymentProcess  PaymentEvent = "process"
	PaymentComplete PaymentEvent = "complete"
	PaymentFail     PaymentEvent = "fail"
	PaymentRevert   PaymentEvent = "revert"
)

type InquiryStatus string

const (
	InquiryNew               InquiryStatus = "NEW"
	InquiryContacted         InquiryStatus = "CONTACTED"
	InquiryTourScheduled     InquiryStatus = "TOUR_SCHEDULED"
	InquiryTourCompleted     InquiryStatus = "TOUR_COMPLETED"
	InquiryQualified         InquiryStatus = "QUALIFIED"
	InquiryPlacementOffered  InquiryStatus = "PLACEMENT_OFFERED"
	InquiryPlacementAccepted InquiryStatus = "PLACEMENT_ACCEPTED"
	InquiryConverted         InquiryStatus = "CONVERTED"
	InquiryClosedLost        InquiryStatus = "CLOSED_LOST"
)

// InquiryPipeline is the forward order of the lead pipeline.
var InquiryPipeline = []InquiryStatus{
	InquiryNew,
	InquiryContacted,
	InquiryTourScheduled,
	InquiryTourCompleted,
	InquiryQualified,
	InquiryPlacementOffered,
	InquiryPlacementAccepted,
	InquiryConverted,
}

// InquiryEvent names the target status of a pipeline move.
type InquiryEvent string

func (s InquiryStatus) Valid() bool {
	if s == InquiryClosedLost {
		return true
	}
	for _, p := range InquiryPipeline {
		if p == s {
			return true
		}
	}
	return false
}

var Shifts = NewMachine[ShiftStatus, ShiftEvent]("shift").
	Allow(ShiftConfirm, ShiftAssigned, ShiftOpen).
	Allow(ShiftStart, ShiftInProgress, ShiftAssigned).
	Allow(ShiftComplete, ShiftCompleted, ShiftAssigned, ShiftInProgress).
	Allow(ShiftCancel, ShiftCancelled, ShiftOpen, ShiftAssigned, ShiftInProgress)

var Applications = NewMachine[ApplicationStatus, ApplicationEvent]("application").
	Allow(AppOffer, AppOffered, AppApplied, AppWithdrawn, AppRejected).
	Allow(AppReapply, AppApplied, AppWithdrawn).
	Allow(AppAccept, AppAccepted, AppOffered).
	Allow(AppReject, AppRejected, AppApplied, AppOffered, AppAccepted).
	Allow(AppWithdraw, AppWithdrawn, AppApplied, AppOffered, AppAccepted)

var Timesheets = NewMachine[TimesheetStatus, TimesheetEvent]("timesheet").
	Allow(TimesheetSubmit, TimesheetSubmitted, TimesheetDraft).
	Allow(TimesheetApprove, TimesheetApproved, TimesheetSubmitted).
	Allow(TimesheetSettle, TimesheetPaid, TimesheetApproved)

var Payments = NewMachine[PaymentStatus, PaymentEvent]("payment").
	Allow(PaymentProcess, PaymentProcessing, PaymentPending, PaymentFailed).
	Allow(PaymentComplete, PaymentCompleted, PaymentProcessing).
	Allow(PaymentFail, PaymentFailed, PaymentProcessing).
	Allow(PaymentRevert, PaymentPending, PaymentProcessing)

var Inquiries = buildInquiries()

func buildInquiries() *Machine[InquiryStatus, InquiryEvent] {
	m := NewMachine[InquiryStatus, InquiryEvent]("inquiry")
	for i, from := range InquiryPipeline {
		for _, to := range InquiryPipeline[i+1:] {
			m.Allow(InquiryEvent(to), to, from)
		}
		if from != InquiryConverted {
			m.Allow(InquiryEvent(InquiryClosedLost), InquiryClosedLost, from)
		}
	}
	return m
}
