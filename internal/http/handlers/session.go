package handlers

import (
	"context"
	"net/http"

	"github.com/wolfman30/previsit/internal/scheduling"
	"github.com/wolfman30/previsit/internal/slots"
	"github.com/wolfman30/previsit/internal/workflow"
	"github.com/wolfman30/previsit/pkg/logging"
)

// PatientSearcher looks up patients by free text.
type PatientSearcher interface {
	SearchPatients(ctx context.Context, query string) ([]scheduling.Patient, error)
}

// SessionHandler exposes the operator session over HTTP.
type SessionHandler struct {
	workflow *workflow.Controller
	patients PatientSearcher
	logger   *logging.Logger
}

// NewSessionHandler wires the session routes to a workflow controller.
func NewSessionHandler(wf *workflow.Controller, patients PatientSearcher, logger *logging.Logger) *SessionHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionHandler{workflow: wf, patients: patients, logger: logger}
}

// SearchPatients proxies GET /patients?query= to the backend.
func (h *SessionHandler) SearchPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.patients.SearchPatients(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		h.logger.WithTrace(r.Context()).Warn("patient search failed", "error", err)
		writeError(w, http.StatusBadGateway, scheduling.UserMessage(err, "Failed to load patients."))
		return
	}
	if patients == nil {
		patients = []scheduling.Patient{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"patients": patients})
}

// GetSession returns the current snapshot.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.workflow.Snapshot())
}

type selectPatientRequest struct {
	Patient *scheduling.Patient `json:"patient" validate:"required"`
}

// SelectPatient handles PUT /session/patient.
func (h *SessionHandler) SelectPatient(w http.ResponseWriter, r *http.Request) {
	var req selectPatientRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.workflow.SelectPatient(req.Patient)
	writeOutcome(w, nil, h.workflow.Snapshot())
}

// ClearPatient handles DELETE /session/patient.
func (h *SessionHandler) ClearPatient(w http.ResponseWriter, r *http.Request) {
	h.workflow.SelectPatient(nil)
	writeOutcome(w, nil, h.workflow.Snapshot())
}

type textRequest struct {
	Text string `json:"text"`
}

// SetNarrative handles PUT /session/narrative.
func (h *SessionHandler) SetNarrative(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := h.workflow.SetNarrative(req.Text)
	writeOutcome(w, err, h.workflow.Snapshot())
}

// SetReason handles PUT /session/reason.
func (h *SessionHandler) SetReason(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := h.workflow.SetReason(req.Text)
	writeOutcome(w, err, h.workflow.Snapshot())
}

// SetWindow handles PUT /session/window.
func (h *SessionHandler) SetWindow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Window string `json:"window" validate:"required"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	window, err := slots.ParseWindow(req.Window)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = h.workflow.SetWindow(window)
	writeOutcome(w, err, h.workflow.Snapshot())
}

// RunIntake handles POST /session/intake. Without a narrative in the body the
// stored one is used.
func (h *SessionHandler) RunIntake(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Narrative *string `json:"narrative"`
	}
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	narrative := h.workflow.Snapshot().Narrative
	if req.Narrative != nil {
		narrative = *req.Narrative
	}
	err := h.workflow.RunIntake(r.Context(), narrative)
	writeOutcome(w, err, h.workflow.Snapshot())
}

// FetchSlots handles POST /session/slots. Without a reason in the body the
// stored one is used.
func (h *SessionHandler) FetchSlots(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReasonForVisit *string `json:"reason_for_visit"`
	}
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reason := h.workflow.Snapshot().Reason
	if req.ReasonForVisit != nil {
		reason = *req.ReasonForVisit
	}
	err := h.workflow.FetchSlots(r.Context(), reason)
	writeOutcome(w, err, h.workflow.Snapshot())
}

// Book handles POST /session/slots/{slotID}/book.
func (h *SessionHandler) Book(w http.ResponseWriter, r *http.Request) {
	slotID, err := int64Param(r, "slotID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = h.workflow.Book(r.Context(), slotID)
	writeOutcome(w, err, h.workflow.Snapshot())
}

// ToggleBooked handles POST /session/booked/toggle.
func (h *SessionHandler) ToggleBooked(w http.ResponseWriter, r *http.Request) {
	err := h.workflow.ToggleBookedPanel(r.Context())
	writeOutcome(w, err, h.workflow.Snapshot())
}

// RefreshBooked handles POST /session/booked/refresh.
func (h *SessionHandler) RefreshBooked(w http.ResponseWriter, r *http.Request) {
	err := h.workflow.RefreshBooked(r.Context())
	writeOutcome(w, err, h.workflow.Snapshot())
}

// SelectBooked handles POST /session/booked/{appointmentID}/select.
func (h *SessionHandler) SelectBooked(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "appointmentID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = h.workflow.SelectBooked(r.Context(), id)
	writeOutcome(w, err, h.workflow.Snapshot())
}

// DismissError handles DELETE /session/error.
func (h *SessionHandler) DismissError(w http.ResponseWriter, r *http.Request) {
	h.workflow.DismissError()
	writeOutcome(w, nil, h.workflow.Snapshot())
}
