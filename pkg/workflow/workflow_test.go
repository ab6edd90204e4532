package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShiftTransitions(t *testing.T) {
	cases := []struct {
		from ShiftStatus
		ev   ShiftEvent
		to   ShiftStatus
		ok   bool
	}{
		{ShiftOpen, ShiftConfirm, ShiftAssigned, true},
		{ShiftAssigned, ShiftConfirm, "", false},
		{ShiftAssigned, ShiftStart, ShiftInProgress, true},
		{ShiftOpen, ShiftStart, "", false},
		{ShiftInProgress, ShiftComplete, ShiftCompleted, true},
		{ShiftOpen, ShiftComplete, "", false},
		{ShiftInProgress, ShiftCancel, ShiftCancelled, true},
		{ShiftCompleted, ShiftCancel, "", false},
		{ShiftCancelled, ShiftConfirm, "", false},
	}
	for _, tc := range cases {
		to, err := Shifts.Next(tc.from, tc.ev)
		if tc.ok {
			require.NoError(t, err, "%s --%s-->", tc.from, tc.ev)
			assert.Equal(t, tc.to, to)
			continue
		}
		require.Error(t, err, "%s --%s-->", tc.from, tc.ev)
		assert.True(t, errors.Is(err, ErrIllegalTransition))
		assert.Equal(t, tc.from, to)
	}
}

func TestApplicationTransitions(t *testing.T) {
	assert.True(t, Applications.Can(AppOffered, AppAccept))
	assert.False(t, Applications.Can(AppApplied, AppAccept))
	assert.False(t, Applications.Can(AppRejected, AppReapply))
	assert.True(t, Applications.Can(AppWithdrawn, AppReapply))
	assert.True(t, Applications.Can(AppRejected, AppOffer))
	assert.False(t, Applications.Can(AppAccepted, AppOffer))
	assert.Equal(t,
		[]ApplicationStatus{AppAccepted, AppApplied, AppOffered},
		Applications.Sources(AppWithdraw))
}

func TestPaymentClaimSources(t *testing.T) {
	assert.Equal(t, []PaymentStatus{PaymentFailed, PaymentPending}, Payments.Sources(PaymentProcess))
	assert.True(t, Payments.Terminal(PaymentCompleted))
	_, err := Payments.Next(PaymentCompleted, PaymentProcess)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "payment", te.Entity)
	assert.Equal(t, "payment cannot process from COMPLETED", te.Error())
}

func TestInquiryPipelineIsForwardOnly(t *testing.T) {
	_, err := Inquiries.Next(InquiryNew, InquiryEvent(InquiryTourScheduled))
	require.NoError(t, err)

	_, err = Inquiries.Next(InquiryQualified, InquiryEvent(InquiryContacted))
	assert.ErrorIs(t, err, ErrIllegalTransition)

	to, err := Inquiries.Next(InquiryPlacementOffered, InquiryEvent(InquiryClosedLost))
	require.NoError(t, err)
	assert.Equal(t, InquiryClosedLost, to)

	assert.True(t, Inquiries.Terminal(InquiryConverted))
	assert.True(t, Inquiries.Terminal(InquiryClosedLost))
	assert.True(t, InquiryStatus("CLOSED_LOST").Valid())
	assert.False(t, InquiryStatus("ARCHIVED").Valid())
}
