package handlers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/database"
	"github.com/arnavshah/carelink-api-go/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteUser(t *testing.T) {
	e := newEnv(t)
	admin := e.newActor(database.RoleAdmin, "admin@example.com")
	cg := e.newActor(database.RoleCaregiver, "cg@example.com")
	path := "/api/admin/users/" + cg.User.ID

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, path, cg.Token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodDelete, "/api/admin/users/"+admin.User.ID, admin.Token, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/api/admin/users/missing", admin.Token, nil).Code)

	w := e.do(http.MethodDelete, path, admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "DELETED", decode(t, w)["data"].(map[string]any)["status"])

	assert.Equal(t, http.StatusConflict, e.do(http.MethodDelete, path, admin.Token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/auth/me", cg.Token, nil).Code)

	w = e.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "cg@example.com", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListUsers(t *testing.T) {
	e := newEnv(t)
	admin := e.newActor(database.RoleAdmin, "admin@example.com")
	e.newActor(database.RoleCaregiver, "alex@example.com")
	e.newActor(database.RoleCaregiver, "blair@example.com")
	e.newActor(database.RoleOperator, "op@example.com")

	total := func(query string) float64 {
		w := e.do(http.MethodGet, "/api/admin/users"+query, admin.Token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return decode(t, w)["meta"].(map[string]any)["total"].(float64)
	}
	assert.Equal(t, 4.0, total(""))
	assert.Equal(t, 2.0, total("?role=caregiver"))
	assert.Equal(t, 1.0, total("?q=BLAIR"))
	assert.Equal(t, 0.0, total("?status=DELETED"))
}

func TestAdminMetrics(t *testing.T) {
	e := newEnv(t)
	admin := e.newActor(database.RoleAdmin, "admin@example.com")
	op := e.newActor(database.RoleOperator, "op@example.com")
	e.newActor(database.RoleCaregiver, "cg@example.com")
	home := e.newHome(op)
	e.newShift(home, tomorrow(), 4, workflow.ShiftOpen, "")
	e.newShift(home, tomorrow(), 4, workflow.ShiftCancelled, "")

	w := e.do(http.MethodGet, "/api/admin/metrics", admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]any)

	byRole := data["users"].(map[string]any)["byRole"].(map[string]any)
	assert.Equal(t, 1.0, byRole["CAREGIVER"])
	assert.Equal(t, 1.0, byRole["OPERATOR"])
	shifts := data["shifts"].(map[string]any)["byStatus"].(map[string]any)
	assert.Equal(t, 1.0, shifts["OPEN"])
	assert.Equal(t, 1.0, shifts["CANCELLED"])
}

func TestCaregiverHoursReport(t *testing.T) {
	e := newEnv(t)
	admin := e.newActor(database.RoleAdmin, "admin@example.com")
	op := e.newActor(database.RoleOperator, "op@example.com")
	busy := e.newActor(database.RoleCaregiver, "busy@example.com")
	idle := e.newActor(database.RoleCaregiver, "idle@example.com")
	home := e.newHome(op)

	start := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Hour)
	e.newShift(home, start, 8, workflow.ShiftCompleted, busy.CaregiverID)
	e.newShift(home, start.Add(24*time.Hour), 4, workflow.ShiftAssigned, busy.CaregiverID)
	e.newShift(home, start, 6, workflow.ShiftCancelled, idle.CaregiverID)

	w := e.do(http.MethodGet, "/api/admin/reports/caregiver-hours", admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	rows := body["data"].([]any)
	require.Len(t, rows, 2)
	top := rows[0].(map[string]any)
	assert.Equal(t, busy.CaregiverID, top["caregiverId"])
	assert.Equal(t, 12.0, top["hours"])
	assert.Equal(t, 2.0, top["shifts"])
	assert.Equal(t, 0.0, rows[1].(map[string]any)["hours"])
	assert.Less(t, body["fairnessScore"].(float64), 100.0)

	w = e.do(http.MethodGet, "/api/admin/reports/caregiver-hours?format=csv", admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "caregiver_id,name,shifts,hours"))

	w = e.do(http.MethodGet, "/api/admin/reports/caregiver-hours?from=2024-02-01&to=2024-01-01", admin.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHomeReport(t *testing.T) {
	e := newEnv(t)
	admin := e.newActor(database.RoleAdmin, "admin@example.com")
	op := e.newActor(database.RoleOperator, "op@example.com")
	home := e.newHome(op)
	start := tomorrow()

	for i := 0; i < 2; i++ {
		w := e.do(http.MethodPost, "/api/shifts", op.Token, shiftBody(home.ID, start, start.Add(4*time.Hour)))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := e.do(http.MethodGet, "/api/admin/reports/homes?homeId="+home.ID, admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	totals := decode(t, w)["totals"].(map[string]any)
	assert.Equal(t, 2.0, totals["shiftsPosted"])
	assert.Equal(t, 0.0, totals["fillRate"])

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/admin/reports/homes?days=0", admin.Token, nil).Code)

	w = e.do(http.MethodGet, "/api/admin/reports/homes/export", admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), home.ID)
}

func TestHomeReportExport_OmitsSurrogateID(t *testing.T) {
	e := newEnv(t)
	admin := e.newActor(database.RoleAdmin, "admin@example.com")
	op := e.newActor(database.RoleOperator, "op@example.com")
	home := e.newHome(op)
	start := tomorrow()
	require.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/api/shifts", op.Token, shiftBody(home.ID, start, start.Add(4*time.Hour))).Code)

	w := e.do(http.MethodGet, "/api/admin/reports/homes/export", admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	header := strings.SplitN(w.Body.String(), "\n", 2)[0]
	assert.Equal(t, "home_id,date,shifts_posted,shifts_filled,hours_filled", strings.TrimSpace(header))
}
