package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/previsit/internal/workflow"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// Outcome header values reported alongside every session snapshot.
const (
	outcomeHeader  = "X-Previsit-Outcome"
	outcomeOK      = "ok"
	outcomeSkipped = "skipped"
	outcomeBusy    = "busy"
	outcomeStale   = "stale"
	outcomeFailed  = "failed"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON body into dst and checks its validate tags. An
// empty body is allowed when optional is true and leaves dst untouched.
func decodeJSON(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("validation failed: %s", formatValidationError(err))
	}
	return nil
}

func formatValidationError(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, ", ")
}

func int64Param(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// writeOutcome answers a workflow operation with the current snapshot.
// Declined operations are 202; backend failures are 200 because the banner
// in the snapshot is the failure report.
func writeOutcome(w http.ResponseWriter, err error, snap workflow.Snapshot) {
	status, outcome := http.StatusOK, outcomeOK
	switch {
	case err == nil:
	case errors.Is(err, workflow.ErrSkipped):
		status, outcome = http.StatusAccepted, outcomeSkipped
	case errors.Is(err, workflow.ErrBusy):
		status, outcome = http.StatusAccepted, outcomeBusy
	case errors.Is(err, workflow.ErrStale):
		outcome = outcomeStale
	default:
		outcome = outcomeFailed
	}
	w.Header().Set(outcomeHeader, outcome)
	writeJSON(w, status, snap)
}
