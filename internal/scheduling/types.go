package scheduling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Risk levels returned by the backend.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Urgency buckets returned by the backend.
const (
	UrgencyRoutine       = "routine"
	UrgencyWithin7Days   = "within_7_days"
	UrgencyWithin48Hours = "within_48_hours"
	UrgencyWithin24Hours = "within_24_hours"
)

// Timestamp accepts RFC3339 values as well as the zone-less ISO timestamps the
// backend emits for naive datetimes; zone-less values are read as UTC.
type Timestamp struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// ParseTimestamp parses a backend timestamp string.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts, nil
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp: unrecognized format %q", raw)
}

// Patient is the identity record used for selection. Only ID matters to the workflow.
type Patient struct {
	ID        int64  `json:"id" validate:"gt=0"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	DOB       string `json:"dob,omitempty"`
	Gender    string `json:"gender,omitempty"`
}

// FullName joins first and last name.
func (p Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// ClinicalRisk is the backend's urgency classification for a reason-for-visit.
type ClinicalRisk struct {
	RiskScore          float64   `json:"risk_score"`
	RiskLevel          string    `json:"risk_level"`
	Factors            []string  `json:"factors"`
	RecommendedUrgency string    `json:"recommended_urgency"`
	GeneratedAt        Timestamp `json:"generated_at"`
}

// BadgeLabel renders the risk the way the scheduler badge shows it, e.g. "Risk: HIGH (82)".
func (r ClinicalRisk) BadgeLabel() string {
	return fmt.Sprintf("Risk: %s (%s)", strings.ToUpper(r.RiskLevel), strconv.FormatFloat(r.RiskScore, 'f', -1, 64))
}

// UrgencyLabel turns "within_7_days" into "within 7 days".
func (r ClinicalRisk) UrgencyLabel() string {
	return strings.ReplaceAll(r.RecommendedUrgency, "_", " ")
}

// Appointment is either an open slot or a booked visit.
type Appointment struct {
	ID             int64         `json:"id"`
	Status         string        `json:"status"`
	Start          Timestamp     `json:"start"`
	SlotDuration   int           `json:"slot_duration"`
	PatientID      *int64        `json:"patient_id,omitempty"`
	ProviderID     *int64        `json:"provider_id,omitempty"`
	Location       string        `json:"location,omitempty"`
	VisitType      string        `json:"visit_type,omitempty"`
	ReasonForVisit string        `json:"reason_for_visit,omitempty"`
	ClinicalRisk   *ClinicalRisk `json:"clinical_risk,omitempty"`
	PrepSummary    *PrepSummary  `json:"prep_summary,omitempty"`
}

// RecommendedSlot is an open slot the backend ranked favorably.
type RecommendedSlot struct {
	Appointment     Appointment `json:"appointment"`
	ScoreAdjustment float64     `json:"score_adjustment"`
}

// IntakeResult is the structured output of the intake narrative service.
type IntakeResult struct {
	ReasonForVisit   string   `json:"reason_for_visit"`
	TriageTags       []string `json:"triage_tags"`
	SuggestedUrgency string   `json:"suggested_urgency"`
	Summary          string   `json:"summary"`
}

// AvailableSlots is the slot recommendation response.
type AvailableSlots struct {
	Risk             *ClinicalRisk     `json:"risk"`
	RecommendedSlots []RecommendedSlot `json:"recommended_slots"`
	OtherSlots       []Appointment     `json:"other_slots"`
}

// BookingSummary is the terminal artifact of a booking or a booked-visit lookup.
type BookingSummary struct {
	Appointment Appointment   `json:"appointment"`
	Risk        *ClinicalRisk `json:"risk"`
	PrepSummary *PrepSummary  `json:"prep_summary"`
}

// PrepSummary is the pre-visit briefing bundle attached to a booked appointment.
type PrepSummary struct {
	PatientSnapshot  *PatientSnapshot  `json:"patient_snapshot,omitempty"`
	VisitDetails     *VisitDetails     `json:"visit_details,omitempty"`
	InsuranceSummary *InsuranceSummary `json:"insurance_summary,omitempty"`
	TodoForClinic    []string          `json:"todo_for_clinic,omitempty"`
	NoteTemplate     *NoteTemplate     `json:"note_template,omitempty"`
}

// NoteTemplate keeps each SOAP section raw: a section may be a string, a list of lines, or absent.
type NoteTemplate struct {
	Subjective json.RawMessage `json:"subjective,omitempty"`
	Objective  json.RawMessage `json:"objective,omitempty"`
	Assessment json.RawMessage `json:"assessment,omitempty"`
	Plan       json.RawMessage `json:"plan,omitempty"`
}

type PatientSnapshot struct {
	Name            string   `json:"name"`
	Age             int      `json:"age"`
	Gender          string   `json:"gender"`
	Conditions      []string `json:"conditions"`
	Medications     []string `json:"medications"`
	Allergies       []string `json:"allergies"`
	PrimaryLanguage string   `json:"primary_language,omitempty"`
}

type VisitDetails struct {
	Datetime       string `json:"datetime"`
	Location       string `json:"location,omitempty"`
	VisitType      string `json:"visit_type,omitempty"`
	ReasonForVisit string `json:"reason_for_visit,omitempty"`
}

type InsuranceSummary struct {
	Payer             string   `json:"payer"`
	Plan              string   `json:"plan"`
	CoPay             *float64 `json:"coPay"`
	EligibilityStatus string   `json:"eligibility_status"`
	RequiresReferral  bool     `json:"requires_referral"`
}

type intakeRequest struct {
	PatientID int64  `json:"patient_id"`
	Narrative string `json:"narrative"`
}

type availableSlotsRequest struct {
	PatientID      int64  `json:"patient_id"`
	ReasonForVisit string `json:"reason_for_visit"`
}

type bookRequest struct {
	PatientID      int64  `json:"patient_id"`
	AppointmentID  int64  `json:"appointment_id"`
	ReasonForVisit string `json:"reason_for_visit"`
}

type patientAppointmentsResponse struct {
	Appointments []Appointment `json:"appointments"`
}
