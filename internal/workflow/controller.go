// Package workflow drives one operator's scheduling session: intake
// structuring, risk-ranked slot lookup, booking and booked-visit review for
// the selected patient.
//
// Every piece of session state belongs to the currently selected patient.
// Selecting another patient bumps an epoch counter and replaces the state
// wholesale; responses that come back for an older epoch are dropped.
package workflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/wolfman30/previsit/internal/observability/metrics"
	"github.com/wolfman30/previsit/internal/scheduling"
	"github.com/wolfman30/previsit/internal/slots"
	"github.com/wolfman30/previsit/pkg/logging"
)

var workflowTracer = otel.Tracer("previsit.internal.workflow")

// Backend is the slice of the scheduling backend the controller calls.
type Backend interface {
	StructureIntake(ctx context.Context, patientID int64, narrative string) (*scheduling.IntakeResult, error)
	AvailableSlots(ctx context.Context, patientID int64, reason string) (*scheduling.AvailableSlots, error)
	Book(ctx context.Context, patientID, appointmentID int64, reason string) (*scheduling.BookingSummary, error)
	PatientAppointments(ctx context.Context, patientID int64) ([]scheduling.Appointment, error)
	AppointmentDetails(ctx context.Context, appointmentID int64) (*scheduling.BookingSummary, error)
}

// Publisher receives booking summaries. nil means "no visit to show".
type Publisher interface {
	Publish(summary *scheduling.BookingSummary)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records operation outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock overrides time.Now for the slot window.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithObserver registers a callback that receives a snapshot after every state change.
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// Controller owns the per-patient scheduling session. It is safe for
// concurrent use; backend calls run without holding the state lock.
type Controller struct {
	backend   Backend
	publisher Publisher
	logger    *logging.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu       sync.Mutex
	epoch    uint64
	version  uint64
	patient  *scheduling.Patient
	s        session
	onChange func(Snapshot)
}

type session struct {
	narrative string
	intake    *scheduling.IntakeResult
	reason    string

	risk        *scheduling.ClinicalRisk
	recommended []scheduling.RecommendedSlot
	other       []scheduling.Appointment
	window      slots.Window

	intakeRunning bool
	slotsLoading  bool
	booking       map[int64]bool

	showBooked    bool
	bookedLoading bool
	booked        []scheduling.Appointment
	selectedID    *int64

	errMsg string
}

func newSession() session {
	return session{
		window:      slots.WindowWeek,
		recommended: []scheduling.RecommendedSlot{},
		other:       []scheduling.Appointment{},
		booked:      []scheduling.Appointment{},
		booking:     make(map[int64]bool),
	}
}

// New builds a controller with no patient selected.
func New(backend Backend, publisher Publisher, opts ...Option) *Controller {
	if backend == nil {
		panic("workflow: backend required")
	}
	c := &Controller{
		backend:   backend,
		publisher: publisher,
		logger:    logging.Default(),
		now:       time.Now,
		s:         newSession(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnChange registers a callback that receives a snapshot after every state change.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// SelectPatient makes p the active patient. Choosing a different patient (or
// nil) discards the whole session, including in-flight tracking, and clears
// the published booking summary. Re-selecting the current patient is a no-op
// and returns false.
func (c *Controller) SelectPatient(p *scheduling.Patient) bool {
	c.mu.Lock()
	if samePatient(c.patient, p) {
		c.mu.Unlock()
		return false
	}
	c.epoch++
	if p != nil {
		cp := *p
		c.patient = &cp
	} else {
		c.patient = nil
	}
	c.s = newSession()
	c.publishLocked(nil)
	snap := c.changedLocked()
	c.mu.Unlock()

	if p != nil {
		c.logger.Info("patient selected", "patient_id", p.ID)
	} else {
		c.logger.Info("patient cleared")
	}
	c.notify(snap)
	return true
}

func samePatient(a, b *scheduling.Patient) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID
}

// SetNarrative stores the intake narrative being typed.
func (c *Controller) SetNarrative(text string) error {
	return c.edit(func(s *session) { s.narrative = text })
}

// SetReason stores the editable reason-for-visit.
func (c *Controller) SetReason(text string) error {
	return c.edit(func(s *session) { s.reason = text })
}

// SetWindow picks the range applied to the other-slots list.
func (c *Controller) SetWindow(w slots.Window) error {
	if w != slots.WindowWeek && w != slots.WindowMonth {
		return ErrSkipped
	}
	return c.edit(func(s *session) { s.window = w })
}

// DismissError hides the error banner.
func (c *Controller) DismissError() {
	c.mu.Lock()
	if c.s.errMsg == "" {
		c.mu.Unlock()
		return
	}
	c.s.errMsg = ""
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
}

func (c *Controller) edit(fn func(*session)) error {
	c.mu.Lock()
	if c.patient == nil {
		c.mu.Unlock()
		return ErrSkipped
	}
	fn(&c.s)
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// FilterOtherSlots returns the other-slot list narrowed to the selected window.
func (c *Controller) FilterOtherSlots() []scheduling.Appointment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slots.Filter(c.s.other, c.s.window, c.now())
}

// Snapshot returns a copy of the session for rendering.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// slotVisibleLocked reports whether id is offered in the recommended list or
// in the window-filtered other list.
func (c *Controller) slotVisibleLocked(id int64) bool {
	for _, rs := range c.s.recommended {
		if rs.Appointment.ID == id {
			return true
		}
	}
	for _, a := range slots.Filter(c.s.other, c.s.window, c.now()) {
		if a.ID == id {
			return true
		}
	}
	return false
}

func (c *Controller) publishLocked(summary *scheduling.BookingSummary) {
	if c.publisher != nil {
		c.publisher.Publish(summary)
	}
}

func (c *Controller) changedLocked() Snapshot {
	c.version++
	return c.snapshotLocked()
}

func (c *Controller) notify(snap Snapshot) {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
