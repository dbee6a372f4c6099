package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/previsit/internal/clipboard"
	"github.com/wolfman30/previsit/internal/prepnote"
	"github.com/wolfman30/previsit/internal/scheduling"
	"github.com/wolfman30/previsit/internal/workflow"
	"github.com/wolfman30/previsit/pkg/logging"
)

var fixedNow = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// fakeScheduling serves the backend endpoints the session calls.
func fakeScheduling(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/patients", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") == "boom" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"detail":"Patient directory offline"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":42,"first_name":"Ada","last_name":"King","email":"ada@example.com","phone":"555"}]`))
	})
	mux.HandleFunc("/intake/structure", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"reason_for_visit":"Shortness of breath","triage_tags":["respiratory"],"suggested_urgency":"within_48_hours","summary":"3 days of SOB"}`))
	})
	mux.HandleFunc("/appointments/available", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"risk":{"risk_score":82,"risk_level":"high","factors":["COPD"],"recommended_urgency":"within_24_hours","generated_at":"2024-01-01T08:00:00"},
			"recommended_slots":[{"appointment":{"id":7,"status":"open","start":"2024-01-01T13:00:00","slot_duration":30},"score_adjustment":2}],
			"other_slots":[{"id":8,"status":"open","start":"2024-01-03T09:00:00","slot_duration":30}]
		}`))
	})
	mux.HandleFunc("/appointments/book", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AppointmentID int64 `json:"appointment_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.AppointmentID == 8 {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"detail":"Slot already booked"}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"appointment":{"id":7,"status":"booked","start":"2024-01-01T13:00:00","slot_duration":30,"patient_id":42},
			"risk":{"risk_score":82,"risk_level":"high","factors":["COPD"],"recommended_urgency":"within_24_hours"},
			"prep_summary":{"todo_for_clinic":["Bring inhaler"],"note_template":{"subjective":["SOB x3 days"],"objective":null,"assessment":"Possible exacerbation","plan":""}}
		}`))
	})
	mux.HandleFunc("/patients/42/appointments", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"appointments":[{"id":7,"status":"booked","start":"2024-01-01T13:00:00","slot_duration":30}]}`))
	})
	mux.HandleFunc("/appointments/7/details", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"appointment":{"id":7,"status":"booked","start":"2024-01-01T13:00:00","slot_duration":30},"risk":null,"prep_summary":null}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

type testEnv struct {
	router    http.Handler
	workflow  *workflow.Controller
	panel     *prepnote.Panel
	clipboard *clipboard.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logging.New("error")
	ts := fakeScheduling(t)
	client, err := scheduling.New(scheduling.Config{BaseURL: ts.URL, Logger: logger})
	require.NoError(t, err)

	cb := clipboard.NewMemory()
	panel := prepnote.NewPanel(cb, "test-session", logger, nil)
	wf := workflow.New(client, panel, workflow.WithLogger(logger), workflow.WithClock(func() time.Time { return fixedNow }))

	session := NewSessionHandler(wf, client, logger)
	note := NewNoteHandler(panel)

	r := chi.NewRouter()
	r.Get("/patients", session.SearchPatients)
	r.Get("/session", session.GetSession)
	r.Put("/session/patient", session.SelectPatient)
	r.Delete("/session/patient", session.ClearPatient)
	r.Put("/session/narrative", session.SetNarrative)
	r.Put("/session/reason", session.SetReason)
	r.Put("/session/window", session.SetWindow)
	r.Post("/session/intake", session.RunIntake)
	r.Post("/session/slots", session.FetchSlots)
	r.Post("/session/slots/{slotID}/book", session.Book)
	r.Post("/session/booked/toggle", session.ToggleBooked)
	r.Post("/session/booked/refresh", session.RefreshBooked)
	r.Post("/session/booked/{appointmentID}/select", session.SelectBooked)
	r.Delete("/session/error", session.DismissError)
	r.Get("/note", note.GetNote)
	r.Put("/note/sections/{section}", note.EditSection)
	r.Post("/note/edit-mode", note.ToggleEditMode)
	r.Post("/note/copy", note.Copy)

	return &testEnv{router: r, workflow: wf, panel: panel, clipboard: cb}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) workflow.Snapshot {
	t.Helper()
	var snap workflow.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	return snap
}

func TestSearchPatientsProxiesBackend(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/patients?query=ada", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Patients []scheduling.Patient `json:"patients"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Patients, 1)
	assert.Equal(t, "Ada King", resp.Patients[0].FullName())

	rec = env.do(t, http.MethodGet, "/patients?query=boom", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Patient directory offline")
}

func TestSelectPatientValidation(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, "/session/patient", `{`).Code)
	rec := env.do(t, http.MethodPut, "/session/patient", `{"patient":{"id":0}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Patient.ID must satisfy gt=0")
	rec = env.do(t, http.MethodPut, "/session/patient", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Patient is required")

	rec = env.do(t, http.MethodPut, "/session/patient", `{"patient":{"id":42,"first_name":"Ada"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeSnapshot(t, rec)
	require.NotNil(t, snap.Patient)
	assert.Equal(t, int64(42), snap.Patient.ID)
	assert.Equal(t, workflow.StateReady, snap.State)

	rec = env.do(t, http.MethodDelete, "/session/patient", "")
	assert.Equal(t, workflow.StateNoPatient, decodeSnapshot(t, rec).State)
}

func TestSkippedOperationsAnswerAccepted(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/session/intake", `{"narrative":"cough"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, outcomeSkipped, rec.Header().Get(outcomeHeader))

	env.do(t, http.MethodPut, "/session/patient", `{"patient":{"id":42}}`)
	rec = env.do(t, http.MethodPost, "/session/slots", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.do(t, http.MethodPost, "/session/slots/abc/book", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWindowRoute(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPut, "/session/patient", `{"patient":{"id":42}}`)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, "/session/window", `{"window":"year"}`).Code)
	rec := env.do(t, http.MethodPut, "/session/window", `{"window":"Month"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "month", string(decodeSnapshot(t, rec).Window))
}

func TestBookingFailureIsReportedInBanner(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPut, "/session/patient", `{"patient":{"id":42}}`)
	env.do(t, http.MethodPost, "/session/slots", `{"reason_for_visit":"cough"}`)

	rec := env.do(t, http.MethodPost, "/session/slots/8/book", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, outcomeFailed, rec.Header().Get(outcomeHeader))
	snap := decodeSnapshot(t, rec)
	assert.Equal(t, "Slot already booked", snap.Error)
	assert.Len(t, snap.OtherFiltered, 1)

	rec = env.do(t, http.MethodDelete, "/session/error", "")
	assert.Empty(t, decodeSnapshot(t, rec).Error)
}

func TestFullSessionFlow(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPut, "/session/patient", `{"patient":{"id":42}}`)
	env.do(t, http.MethodPut, "/session/narrative", `{"text":"SOB x3 days"}`)

	rec := env.do(t, http.MethodPost, "/session/intake", "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeSnapshot(t, rec)
	assert.Equal(t, "Shortness of breath", snap.Reason)
	require.NotNil(t, snap.Intake)

	rec = env.do(t, http.MethodPost, "/session/slots", "")
	snap = decodeSnapshot(t, rec)
	require.NotNil(t, snap.Risk)
	assert.Equal(t, "Risk: HIGH (82)", snap.Risk.BadgeLabel)
	require.Len(t, snap.Recommended, 1)
	assert.Equal(t, int64(7), snap.Recommended[0].Appointment.ID)

	rec = env.do(t, http.MethodPost, "/session/slots/7/book", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, outcomeOK, rec.Header().Get(outcomeHeader))

	rec = env.do(t, http.MethodPut, "/note/sections/plan", `{"text":"Follow up in 2 weeks"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var view prepnote.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(t, strings.HasSuffix(view.Combined, "P: Follow up in 2 weeks"))
	assert.NotContains(t, view.Combined, "O:")

	rec = env.do(t, http.MethodPost, "/note/copy", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(t, view.Copied)
	text, ok := env.clipboard.Last("test-session")
	require.True(t, ok)
	assert.Equal(t, view.Combined, text)

	rec = env.do(t, http.MethodPost, "/session/booked/toggle", "")
	snap = decodeSnapshot(t, rec)
	assert.True(t, snap.ShowBooked)
	require.Len(t, snap.Booked, 1)

	rec = env.do(t, http.MethodPost, "/session/booked/7/select", "")
	snap = decodeSnapshot(t, rec)
	require.NotNil(t, snap.SelectedBookedID)
	assert.Equal(t, int64(7), *snap.SelectedBookedID)

	// Details without a template re-seed an empty draft.
	rec = env.do(t, http.MethodGet, "/note", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(t, view.HasSummary)
	assert.True(t, view.Empty)
	assert.False(t, view.CanExport)
}

func TestNoteRoutes(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, "/note/sections/history", `{"text":"x"}`).Code)

	rec := env.do(t, http.MethodPost, "/note/edit-mode", "")
	var view prepnote.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(t, view.EditMode)

	rec = env.do(t, http.MethodPost, "/note/copy", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.False(t, view.Copied)
	_, ok := env.clipboard.Last("test-session")
	assert.False(t, ok)
}
