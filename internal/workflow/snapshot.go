package workflow

import (
	"sort"

	"github.com/wolfman30/previsit/internal/scheduling"
	"github.com/wolfman30/previsit/internal/slots"
)

// Session states reported in Snapshot.State.
const (
	StateNoPatient     = "no_patient"
	StateReady         = "ready"
	StateIntakeRunning = "intake_running"
	StateSlotsLoading  = "slots_loading"
	StateBooking       = "booking"
)

// Snapshot is an immutable copy of the session with its derived views.
// Version increases with every change so observers can drop older copies.
type Snapshot struct {
	Version uint64              `json:"version"`
	State   string              `json:"state"`
	Patient *scheduling.Patient `json:"patient"`

	Narrative string                   `json:"narrative"`
	Intake    *scheduling.IntakeResult `json:"intake"`
	Reason    string                   `json:"reason_for_visit"`

	Risk          *RiskView                    `json:"risk"`
	Recommended   []scheduling.RecommendedSlot `json:"recommended_slots"`
	Other         []scheduling.Appointment     `json:"other_slots"`
	OtherFiltered []scheduling.Appointment     `json:"other_slots_in_window"`
	Window        slots.Window                 `json:"window"`
	// NoRecommendedHint is set when a risk came back with no recommended
	// slots but other slots exist.
	NoRecommendedHint bool `json:"no_recommended_hint"`

	IntakeRunning  bool    `json:"intake_running"`
	SlotsLoading   bool    `json:"slots_loading"`
	BookingSlotIDs []int64 `json:"booking_slot_ids"`

	ShowBooked       bool                     `json:"show_booked"`
	BookedLoading    bool                     `json:"booked_loading"`
	Booked           []scheduling.Appointment `json:"booked"`
	SelectedBookedID *int64                   `json:"selected_booked_id"`

	Error string `json:"error,omitempty"`
}

// RiskView is the risk badge shown above the slot lists.
type RiskView struct {
	Score        float64  `json:"risk_score"`
	Level        string   `json:"risk_level"`
	Urgency      string   `json:"recommended_urgency"`
	Factors      []string `json:"factors"`
	BadgeLabel   string   `json:"badge_label"`
	UrgencyLabel string   `json:"urgency_label"`
}

// IsBooking reports whether slotID has a booking in flight.
func (s Snapshot) IsBooking(slotID int64) bool {
	for _, id := range s.BookingSlotIDs {
		if id == slotID {
			return true
		}
	}
	return false
}

func (c *Controller) snapshotLocked() Snapshot {
	s := c.s
	snap := Snapshot{
		Version:       c.version,
		State:         c.stateLocked(),
		Narrative:     s.narrative,
		Reason:        s.reason,
		Recommended:   append([]scheduling.RecommendedSlot{}, s.recommended...),
		Other:         append([]scheduling.Appointment{}, s.other...),
		OtherFiltered: slots.Filter(s.other, s.window, c.now()),
		Window:        s.window,
		IntakeRunning: s.intakeRunning,
		SlotsLoading:  s.slotsLoading,
		ShowBooked:    s.showBooked,
		BookedLoading: s.bookedLoading,
		Booked:        append([]scheduling.Appointment{}, s.booked...),
		Error:         s.errMsg,
	}
	if c.patient != nil {
		p := *c.patient
		snap.Patient = &p
	}
	if s.intake != nil {
		in := *s.intake
		in.TriageTags = append([]string(nil), s.intake.TriageTags...)
		snap.Intake = &in
	}
	if s.risk != nil {
		snap.Risk = &RiskView{
			Score:        s.risk.RiskScore,
			Level:        s.risk.RiskLevel,
			Urgency:      s.risk.RecommendedUrgency,
			Factors:      append([]string{}, s.risk.Factors...),
			BadgeLabel:   s.risk.BadgeLabel(),
			UrgencyLabel: s.risk.UrgencyLabel(),
		}
		snap.NoRecommendedHint = len(s.recommended) == 0 && len(s.other) > 0
	}
	snap.BookingSlotIDs = make([]int64, 0, len(s.booking))
	for id := range s.booking {
		snap.BookingSlotIDs = append(snap.BookingSlotIDs, id)
	}
	sort.Slice(snap.BookingSlotIDs, func(i, j int) bool { return snap.BookingSlotIDs[i] < snap.BookingSlotIDs[j] })
	if s.selectedID != nil {
		id := *s.selectedID
		snap.SelectedBookedID = &id
	}
	return snap
}

func (c *Controller) stateLocked() string {
	switch {
	case c.patient == nil:
		return StateNoPatient
	case c.s.intakeRunning:
		return StateIntakeRunning
	case c.s.slotsLoading:
		return StateSlotsLoading
	case len(c.s.booking) > 0:
		return StateBooking
	default:
		return StateReady
	}
}
