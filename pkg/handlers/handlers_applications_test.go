package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/database"
	"github.com/arnavshah/carelink-api-go/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) application(shiftID, caregiverID string) database.ShiftApplication {
	e.t.Helper()
	var app database.ShiftApplication
	require.NoError(e.t, e.db.Where("shift_id = ? AND caregiver_id = ?", shiftID, caregiverID).First(&app).Error)
	return app
}

func TestBookingFlow_ApplyOfferAcceptConfirm(t *testing.T) {
	e := newEnv(t)
	op := e.newActor(database.RoleOperator, "op@example.com")
	alice := e.newActor(database.RoleCaregiver, "alice@example.com")
	bob := e.newActor(database.RoleCaregiver, "bob@example.com")
	home := e.newHome(op)
	shift := e.newShift(home, tomorrow(), 6, workflow.ShiftOpen, "")
	base := "/api/shifts/" + shift.ID

	w := e.do(http.MethodPost, base+"/applications", alice.Token, map[string]any{"notes": "available"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = e.do(http.MethodPost, base+"/applications", bob.Token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodPost, base+"/offer", op.Token, map[string]any{"caregiverId": alice.CaregiverID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "OFFERED", decode(t, w)["data"].(map[string]any)["status"])

	w = e.do(http.MethodPost, base+"/accept", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ACCEPTED", decode(t, w)["data"].(map[string]any)["status"])

	w = e.do(http.MethodPost, base+"/confirm", alice.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodPost, base+"/confirm", op.Token, map[string]any{"caregiverId": bob.CaregiverID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodPost, base+"/confirm", op.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "ASSIGNED", body["data"].(map[string]any)["status"])
	assert.Equal(t, alice.CaregiverID, body["hire"].(map[string]any)["caregiverId"])

	var got database.Shift
	require.NoError(t, e.db.First(&got, "id = ?", shift.ID).Error)
	assert.Equal(t, workflow.ShiftAssigned, got.Status)
	require.NotNil(t, got.CaregiverID)
	assert.Equal(t, alice.CaregiverID, *got.CaregiverID)

	var hires int64
	require.NoError(t, e.db.Model(&database.Hire{}).Where("shift_id = ?", shift.ID).Count(&hires).Error)
	assert.EqualValues(t, 1, hires)

	assert.Equal(t, workflow.AppRejected, e.application(shift.ID, bob.CaregiverID).Status)

	var stat database.HomeDailyStat
	require.NoError(t, e.db.Where("home_id = ?", home.ID).First(&stat).Error)
	assert.Equal(t, 1, stat.ShiftsFilled)
	assert.InDelta(t, 6.0, stat.HoursFilled, 0.001)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), stat.Date, "keyed by confirmation day")

	w = e.do(http.MethodPost, base+"/confirm", op.Token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	var notes int64
	require.NoError(t, e.db.Model(&database.Notification{}).Where("user_id = ?", alice.User.ID).Count(&notes).Error)
	assert.EqualValues(t, 2, notes, "offer and confirmation")
}

func TestConfirm_RequiresAcceptedApplication(t *testing.T) {
	e := newEnv(t)
	op := e.newActor(database.RoleOperator, "op@example.com")
	cg := e.newActor(database.RoleCaregiver, "cg@example.com")
	home := e.newHome(op)
	shift := e.newShift(home, tomorrow(), 4, workflow.ShiftOpen, "")

	w := e.do(http.MethodPost, "/api/shifts/"+shift.ID+"/applications", cg.Token, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(http.MethodPost, "/api/shifts/"+shift.ID+"/confirm", op.Token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAccept_OnlyOneAcceptedPerShift(t *testing.T) {
	e := newEnv(t)
	op := e.newActor(database.RoleOperator, "op@example.com")
	alice := e.newActor(database.RoleCaregiver, "alice@example.com")
	bob := e.newActor(database.RoleCaregiver, "bob@example.com")
	home := e.newHome(op)
	shift := e.newShift(home, tomorrow(), 4, workflow.ShiftOpen, "")
	base := "/api/shifts/" + shift.ID

	for _, cg := range []actor{alice, bob} {
		w := e.do(http.MethodPost, base+"/offer", op.Token, map[string]any{"caregiverId": cg.CaregiverID})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := e.do(http.MethodPost, base+"/accept", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(http.MethodPost, base+"/accept", bob.Token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	var accepted int64
	require.NoError(t, e.db.Model(&database.ShiftApplication{}).
		Where("shift_id = ? AND status = ?", shift.ID, workflow.AppAccepted).Count(&accepted).Error)
	assert.EqualValues(t, 1, accepted)
}

func TestAccept_RejectsOverlappingBooking(t *testing.T) {
	e := newEnv(t)
	op := e.newActor(database.RoleOperator, "op@example.com")
	cg := e.newActor(database.RoleCaregiver, "cg@example.com")
	home := e.newHome(op)
	start := tomorrow()
	e.newShift(home, start, 8, workflow.ShiftAssigned, cg.CaregiverID)
	shift := e.newShift(home, start.Add(4*time.Hour), 8, workflow.ShiftOpen, "")

	w := e.do(http.MethodPost, "/api/shifts/"+shift.ID+"/offer", op.Token, map[string]any{"caregiverId": cg.CaregiverID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(http.MethodPost, "/api/shifts/"+shift.ID+"/accept", cg.Token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, workflow.AppOffered, e.application(shift.ID, cg.CaregiverID).Status)
}

func TestAccept_RequiresOffer(t *testing.T) {
	e := newEnv(t)
	op := e.newActor(database.RoleOperator, "op@example.com")
	cg := e.newActor(database.RoleCaregiver, "cg@example.com")
	home := e.newHome(op)
	shift := e.newShift(home, tomorrow(), 4, workflow.ShiftOpen, "")

	w := e.do(http.MethodPost, "/api/shifts/"+shift.ID+"/accept", cg.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodPost, "/api/shifts/"+shift.ID+"/applications", cg.Token, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	w = e.do(http.MethodPost, "/api/shifts/"+shift.ID+"/accept", cg.Token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestApply_DuplicateWithdrawReapply(t *testing.T) {
	e := newEnv(t)
	op := e.newActor(database.RoleOperator, "op@example.com")
	cg := e.newActor(database.RoleCaregiver, "cg@example.com")
	home := e.newHome(op)
	shift := e.newShift(home, tomorrow(), 4, workflow.ShiftOpen, "")
	path := "/api/shifts/" + shift.ID + "/applications"

	require.Equal(t, http.StatusCreated, e.do(http.MethodPost, path, cg.Token, nil).Code)
	assert.Equal(t, http.StatusConflict, e.do(http.MethodPost, path, cg.Token, nil).Code)

	w := e.do(http.MethodDelete, path, cg.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "WITHDRAWN", decode(t, w)["data"].(map[string]any)["status"])

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, path, cg.Token, nil).Code)

	w = e.do(http.MethodPost, path, cg.Token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, workflow.AppApplied, e.application(shift.ID, cg.CaregiverID).Status)
}

func TestApply_ClosedShiftAndRejected(t *testing.T) {
	e := newEnv(t)
	op := e.newActor(database.RoleOperator, "op@example.com")
	cg := e.newActor(database.RoleCaregiver, "cg@example.com")
	home := e.newHome(op)
	closed := e.newShift(home, tomorrow(), 4, workflow.ShiftCancelled, "")
	open := e.newShift(home, tomorrow().Add(48*time.Hour), 4, workflow.ShiftOpen, "")

	assert.Equal(t, http.StatusConflict, e.do(http.MethodPost, "/api/shifts/"+closed.ID+"/applications", cg.Token, nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/api/shifts/"+open.ID+"/applications", op.Token, nil).Code)

	require.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/api/shifts/"+open.ID+"/applications", cg.Token, nil).Code)
	app := e.application(open.ID, cg.CaregiverID)

	w := e.do(http.MethodPost, "/api/shifts/"+open.ID+"/applications/"+app.ID+"/reject", op.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, http.StatusConflict, e.do(http.MethodPost, "/api/shifts/"+open.ID+"/applications", cg.Token, nil).Code)

	w = e.do(http.MethodPost, "/api/shifts/"+closed.ID+"/applications/"+app.ID+"/reject", op.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWithdraw_AcceptedAfterConfirmIsConflict(t *testing.T) {
	e := newEnv(t)
	op := e.newActor(database.RoleOperator, "op@example.com")
	cg := e.newActor(database.RoleCaregiver, "cg@example.com")
	home := e.newHome(op)
	shift := e.newShift(home, tomorrow(), 4, workflow.ShiftOpen, "")
	base := "/api/shifts/" + shift.ID

	require.Equal(t, http.StatusOK, e.do(http.MethodPost, base+"/offer", op.Token, map[string]any{"caregiverId": cg.CaregiverID}).Code)
	require.Equal(t, http.StatusOK, e.do(http.MethodPost, base+"/accept", cg.Token, nil).Code)
	require.Equal(t, http.StatusOK, e.do(http.MethodPost, base+"/confirm", op.Token, nil).Code)

	assert.Equal(t, http.StatusConflict, e.do(http.MethodDelete, base+"/applications", cg.Token, nil).Code)
}

func TestReject_AcceptedAfterConfirmIsConflict(t *testing.T) {
	e := newEnv(t)
	op := e.newActor(database.RoleOperator, "op@example.com")
	cg := e.newActor(database.RoleCaregiver, "cg@example.com")
	home := e.newHome(op)
	shift := e.newShift(home, tomorrow(), 4, workflow.ShiftOpen, "")
	base := "/api/shifts/" + shift.ID

	require.Equal(t, http.StatusOK, e.do(http.MethodPost, base+"/offer", op.Token, map[string]any{"caregiverId": cg.CaregiverID}).Code)
	require.Equal(t, http.StatusOK, e.do(http.MethodPost, base+"/accept", cg.Token, nil).Code)
	require.Equal(t, http.StatusOK, e.do(http.MethodPost, base+"/confirm", op.Token, nil).Code)

	app := e.application(shift.ID, cg.CaregiverID)
	w := e.do(http.MethodPost, base+"/applications/"+app.ID+"/reject", op.Token, nil)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	app = e.application(shift.ID, cg.CaregiverID)
	assert.Equal(t, workflow.AppAccepted, app.Status)
	var got database.Shift
	require.NoError(t, e.db.First(&got, "id = ?", shift.ID).Error)
	assert.Equal(t, workflow.ShiftAssigned, got.Status)
}

func TestOffer_UnknownCaregiver(t *testing.T) {
	e := newEnv(t)
	op := e.newActor(database.RoleOperator, "op@example.com")
	home := e.newHome(op)
	shift := e.newShift(home, tomorrow(), 4, workflow.ShiftOpen, "")

	w := e.do(http.MethodPost, "/api/shifts/"+shift.ID+"/offer", op.Token, map[string]any{"caregiverId": "nobody"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodPost, "/api/shifts/"+shift.ID+"/offer", op.Token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
