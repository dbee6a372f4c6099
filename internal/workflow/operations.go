package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/previsit/internal/scheduling"
)

const (
	opIntake       = "run_intake"
	opSlots        = "fetch_slots"
	opBook         = "book"
	opToggle       = "toggle_booked"
	opRefresh      = "refresh_booked"
	opSelectBooked = "select_booked"
)

// call pins a backend round trip to the session it was started for.
type call struct {
	epoch     uint64
	patientID int64
}

// RunIntake stores narrative and asks the backend to structure it. On success
// the intake result is kept and the reason-for-visit is overwritten with the
// backend's suggestion.
func (c *Controller) RunIntake(ctx context.Context, narrative string) error {
	ctx, span := workflowTracer.Start(ctx, "workflow.RunIntake")
	defer span.End()

	cl, err := c.begin(opIntake, func(s *session) error {
		s.narrative = narrative
		if blank(narrative) {
			return ErrSkipped
		}
		if s.intakeRunning || s.slotsLoading {
			return ErrBusy
		}
		s.intakeRunning = true
		return nil
	})
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int64("previsit.patient_id", cl.patientID))

	result, err := c.backend.StructureIntake(ctx, cl.patientID, narrative)
	if err == nil && result == nil {
		err = ErrIncompleteResponse
	}
	return c.finish(span, opIntake, cl, err, scheduling.UserMessage(err, msgIntakeFailed),
		func(s *session) { s.intakeRunning = false },
		func(s *session) {
			s.intake = result
			s.reason = result.ReasonForVisit
		})
}

// FetchSlots stores reason and loads the risk assessment with its recommended
// and other slots. The three values are replaced together or not at all.
func (c *Controller) FetchSlots(ctx context.Context, reason string) error {
	ctx, span := workflowTracer.Start(ctx, "workflow.FetchSlots")
	defer span.End()

	cl, err := c.begin(opSlots, func(s *session) error {
		s.reason = reason
		if blank(reason) {
			return ErrSkipped
		}
		if s.intakeRunning || s.slotsLoading {
			return ErrBusy
		}
		s.slotsLoading = true
		return nil
	})
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int64("previsit.patient_id", cl.patientID))

	resp, err := c.backend.AvailableSlots(ctx, cl.patientID, reason)
	if err == nil && (resp == nil || resp.Risk == nil) {
		err = ErrIncompleteResponse
	}
	return c.finish(span, opSlots, cl, err, scheduling.UserMessage(err, msgSlotsFailed),
		func(s *session) { s.slotsLoading = false },
		func(s *session) {
			risk := *resp.Risk
			s.risk = &risk
			s.recommended = nonNilRecommended(resp.RecommendedSlots)
			s.other = nonNilAppointments(resp.OtherSlots)
		})
}

// Book reserves slotID with the stored reason-for-visit. The slot must be on
// offer: recommended, or an other slot inside the current window. Each slot
// books at most once at a time; different slots may book in parallel.
//
// The booking summary is handed to the publisher, and the booked list is
// refreshed when its panel is open. A failed refresh does not fail the booking.
func (c *Controller) Book(ctx context.Context, slotID int64) error {
	ctx, span := workflowTracer.Start(ctx, "workflow.Book")
	defer span.End()
	span.SetAttributes(attribute.Int64("previsit.appointment_id", slotID))

	var reason string
	cl, err := c.begin(opBook, func(s *session) error {
		if blank(s.reason) || !c.slotVisibleLocked(slotID) {
			return ErrSkipped
		}
		if s.booking[slotID] {
			return ErrBusy
		}
		s.booking[slotID] = true
		reason = s.reason
		return nil
	})
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int64("previsit.patient_id", cl.patientID))

	summary, err := c.backend.Book(ctx, cl.patientID, slotID, reason)
	if err == nil && summary == nil {
		err = ErrIncompleteResponse
	}
	var refresh bool
	err = c.finish(span, opBook, cl, err, scheduling.UserMessage(err, msgBookFailed),
		func(s *session) { delete(s.booking, slotID) },
		func(s *session) {
			c.publishLocked(summary)
			refresh = s.showBooked
		})
	if err != nil || !refresh {
		return err
	}
	if rerr := c.RefreshBooked(ctx); rerr != nil && !errors.Is(rerr, ErrBusy) {
		c.logger.Warn("booked list refresh after booking failed", "patient_id", cl.patientID, "error", rerr)
	}
	return nil
}

// ToggleBookedPanel opens or closes the booked appointments panel. Opening
// loads the list first and shows the panel even when that load fails; closing
// keeps the cached list.
func (c *Controller) ToggleBookedPanel(ctx context.Context) error {
	c.mu.Lock()
	if c.patient == nil {
		c.mu.Unlock()
		c.observe(opToggle, outcomeSkipped)
		return ErrSkipped
	}
	if c.s.showBooked {
		c.s.showBooked = false
		snap := c.changedLocked()
		c.mu.Unlock()
		c.observe(opToggle, outcomeSuccess)
		c.notify(snap)
		return nil
	}
	c.mu.Unlock()
	return c.loadBooked(ctx, opToggle, true)
}

// RefreshBooked reloads the booked list without touching panel visibility.
func (c *Controller) RefreshBooked(ctx context.Context) error {
	return c.loadBooked(ctx, opRefresh, false)
}

func (c *Controller) loadBooked(ctx context.Context, op string, open bool) error {
	ctx, span := workflowTracer.Start(ctx, "workflow.LoadBooked")
	defer span.End()

	cl, err := c.begin(op, func(s *session) error {
		if s.bookedLoading {
			return ErrBusy
		}
		s.bookedLoading = true
		return nil
	})
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int64("previsit.patient_id", cl.patientID))

	list, err := c.backend.PatientAppointments(ctx, cl.patientID)
	return c.finish(span, op, cl, err, scheduling.UserMessage(err, msgBookedFailed),
		func(s *session) {
			s.bookedLoading = false
			if open {
				s.showBooked = true
			}
		},
		func(s *session) { s.booked = nonNilAppointments(list) })
}

// SelectBooked marks a booked appointment as selected and publishes its
// details. A response for a selection that has since been replaced is dropped.
func (c *Controller) SelectBooked(ctx context.Context, appointmentID int64) error {
	ctx, span := workflowTracer.Start(ctx, "workflow.SelectBooked")
	defer span.End()
	span.SetAttributes(attribute.Int64("previsit.appointment_id", appointmentID))

	cl, err := c.begin(opSelectBooked, func(s *session) error {
		id := appointmentID
		s.selectedID = &id
		return nil
	})
	if err != nil {
		return err
	}

	summary, err := c.backend.AppointmentDetails(ctx, appointmentID)
	if err == nil && summary == nil {
		err = ErrIncompleteResponse
	}

	c.mu.Lock()
	superseded := c.epoch == cl.epoch && (c.s.selectedID == nil || *c.s.selectedID != appointmentID)
	c.mu.Unlock()
	if superseded {
		c.observe(opSelectBooked, outcomeStale)
		return ErrStale
	}
	// The banner stays fixed here even when the backend explains itself.
	return c.finish(span, opSelectBooked, cl, err, msgDetailsFailed,
		func(*session) {},
		func(*session) { c.publishLocked(summary) })
}

// begin validates and marks an operation as started. prepare runs under the
// lock with a patient selected and returns ErrSkipped or ErrBusy to decline.
// A started operation clears the error banner.
func (c *Controller) begin(op string, prepare func(*session) error) (call, error) {
	c.mu.Lock()
	if c.patient == nil {
		c.mu.Unlock()
		c.observe(op, outcomeSkipped)
		return call{}, ErrSkipped
	}
	if err := prepare(&c.s); err != nil {
		c.mu.Unlock()
		if errors.Is(err, ErrBusy) {
			c.observe(op, outcomeBusy)
		} else {
			c.observe(op, outcomeSkipped)
		}
		return call{}, err
	}
	c.s.errMsg = ""
	cl := call{epoch: c.epoch, patientID: c.patient.ID}
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	return cl, nil
}

// finish applies a backend result if the session is still the one cl was
// started for. settle always runs on a live session; apply only on success,
// banner only on failure.
func (c *Controller) finish(span trace.Span, op string, cl call, err error, banner string, settle, apply func(*session)) error {
	c.mu.Lock()
	if c.epoch != cl.epoch {
		c.mu.Unlock()
		c.observe(op, outcomeStale)
		c.logger.Debug("discarding response for previous patient", "operation", op, "patient_id", cl.patientID)
		return ErrStale
	}
	settle(&c.s)
	if err != nil {
		c.s.errMsg = banner
		snap := c.changedLocked()
		c.mu.Unlock()

		span.RecordError(err)
		span.SetStatus(codes.Error, op)
		c.observe(op, outcomeFailure)
		c.logger.Warn("workflow operation failed", "operation", op, "patient_id", cl.patientID, "error", err)
		c.notify(snap)
		return fmt.Errorf("workflow: %s: %w", op, err)
	}
	apply(&c.s)
	snap := c.changedLocked()
	c.mu.Unlock()

	c.observe(op, outcomeSuccess)
	c.logger.Info("workflow operation completed", "operation", op, "patient_id", cl.patientID)
	c.notify(snap)
	return nil
}

func (c *Controller) observe(op, outcome string) {
	c.metrics.ObserveOperation(op, outcome)
}

func nonNilAppointments(in []scheduling.Appointment) []scheduling.Appointment {
	if in == nil {
		return []scheduling.Appointment{}
	}
	return in
}

func nonNilRecommended(in []scheduling.RecommendedSlot) []scheduling.RecommendedSlot {
	if in == nil {
		return []scheduling.RecommendedSlot{}
	}
	return in
}
