package prepnote

import (
	"context"
	"strings"
	"sync"

	"github.com/wolfman30/previsit/internal/clipboard"
	"github.com/wolfman30/previsit/internal/observability/metrics"
	"github.com/wolfman30/previsit/internal/scheduling"
	"github.com/wolfman30/previsit/pkg/logging"
)

// Panel is the pre-visit preparation panel. It receives booking summaries
// one way and owns the note draft seeded from each new summary.
type Panel struct {
	clipboard clipboard.Clipboard
	scope     string
	logger    *logging.Logger
	metrics   *metrics.Metrics

	mu       sync.Mutex
	summary  *scheduling.BookingSummary
	draft    Draft
	editMode bool
	copied   bool
	revision uint64
	onChange func(View)
}

// NewPanel builds a panel exporting to cb under scope.
func NewPanel(cb clipboard.Clipboard, scope string, logger *logging.Logger, m *metrics.Metrics) *Panel {
	if logger == nil {
		logger = logging.Default()
	}
	if cb == nil {
		cb = clipboard.NewMemory()
	}
	return &Panel{clipboard: cb, scope: scope, logger: logger, metrics: m}
}

// OnChange registers a callback that receives a fresh View after every change.
func (p *Panel) OnChange(fn func(View)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// Publish hands the panel the current booking summary. A summary identical
// (same pointer) to the current one is ignored; any other value re-seeds the
// draft from its note template and resets edit mode and the copied flag. nil
// clears the panel.
func (p *Panel) Publish(summary *scheduling.BookingSummary) {
	p.mu.Lock()
	if summary == p.summary {
		p.mu.Unlock()
		return
	}
	p.summary = summary
	p.draft = Draft{}
	if summary != nil && summary.PrepSummary != nil {
		p.draft = DraftFromTemplate(summary.PrepSummary.NoteTemplate)
	}
	p.editMode = false
	p.copied = false
	p.revision++
	p.mu.Unlock()

	if summary != nil {
		p.logger.Debug("prep note seeded", "appointment_id", summary.Appointment.ID)
	}
	p.notify()
}

// EditSection replaces one section's text and drops any copy confirmation.
func (p *Panel) EditSection(section Section, text string) {
	p.mu.Lock()
	p.draft.Set(section, text)
	p.copied = false
	p.revision++
	p.mu.Unlock()
	p.notify()
}

// ToggleEditMode flips between read and edit rendering and returns the new mode.
func (p *Panel) ToggleEditMode() bool {
	p.mu.Lock()
	p.editMode = !p.editMode
	mode := p.editMode
	p.mu.Unlock()
	p.notify()
	return mode
}

// CombinedNote returns the current export text.
func (p *Panel) CombinedNote() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Combine(p.draft)
}

// Copy writes the combined note to the clipboard. It does nothing when the
// note is empty. A failed write clears the copied flag; it is never reported
// as an error. Returns whether the copied flag is now raised.
func (p *Panel) Copy(ctx context.Context) bool {
	p.mu.Lock()
	text := Combine(p.draft)
	rev := p.revision
	p.mu.Unlock()
	if text == "" {
		return false
	}

	err := p.clipboard.WriteText(ctx, p.scope, text)
	p.metrics.ObserveNoteCopy(err == nil)
	if err != nil {
		p.logger.Warn("note copy failed", "scope", p.scope, "error", err)
	}

	p.mu.Lock()
	if p.revision != rev {
		// The draft changed while writing; the confirmation would describe stale text.
		p.mu.Unlock()
		return false
	}
	p.copied = err == nil
	copied := p.copied
	p.mu.Unlock()
	p.notify()
	return copied
}

// View is the renderable state of the panel.
type View struct {
	HasSummary bool              `json:"has_summary"`
	EditMode   bool              `json:"edit_mode"`
	Copied     bool              `json:"copied"`
	CanExport  bool              `json:"can_export"`
	Empty      bool              `json:"empty"`
	Draft      Draft             `json:"draft"`
	Sections   []RenderedSection `json:"sections"`
	Combined   string            `json:"combined"`
	Booking    *BookingView      `json:"booking,omitempty"`
	Context    *ContextView      `json:"context,omitempty"`
}

// RenderedSection is one labeled paragraph in read mode.
type RenderedSection struct {
	Section Section `json:"section"`
	Label   string  `json:"label"`
	Text    string  `json:"text"`
}

// BookingView summarizes the booked appointment and its risk.
type BookingView struct {
	Appointment  scheduling.Appointment   `json:"appointment"`
	Risk         *scheduling.ClinicalRisk `json:"risk,omitempty"`
	RiskLabel    string                   `json:"risk_label,omitempty"`
	UrgencyLabel string                   `json:"urgency_label,omitempty"`
	KeyFactors   string                   `json:"key_factors,omitempty"`
}

// ContextView is the left-hand context column of the prep panel.
type ContextView struct {
	Patient   *scheduling.PatientSnapshot  `json:"patient,omitempty"`
	Visit     *scheduling.VisitDetails     `json:"visit,omitempty"`
	Insurance *scheduling.InsuranceSummary `json:"insurance,omitempty"`
	Todo      []string                     `json:"todo"`
}

// View returns a copy of the panel's renderable state.
func (p *Panel) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewLocked()
}

func (p *Panel) viewLocked() View {
	combined := Combine(p.draft)
	v := View{
		HasSummary: p.summary != nil,
		EditMode:   p.editMode,
		Copied:     p.copied,
		CanExport:  combined != "",
		Empty:      p.draft.IsEmpty(),
		Draft:      p.draft,
		Sections:   []RenderedSection{},
		Combined:   combined,
	}
	for _, s := range Sections {
		text := p.draft.Get(s)
		if strings.TrimSpace(text) == "" {
			continue
		}
		v.Sections = append(v.Sections, RenderedSection{Section: s, Label: s.Label(), Text: text})
	}
	if p.summary == nil {
		return v
	}

	booking := &BookingView{Appointment: p.summary.Appointment, Risk: p.summary.Risk}
	if r := p.summary.Risk; r != nil {
		booking.RiskLabel = r.BadgeLabel()
		booking.UrgencyLabel = r.UrgencyLabel()
		booking.KeyFactors = strings.Join(r.Factors, ", ")
	}
	v.Booking = booking

	if ps := p.summary.PrepSummary; ps != nil {
		v.Context = &ContextView{
			Patient:   ps.PatientSnapshot,
			Visit:     ps.VisitDetails,
			Insurance: ps.InsuranceSummary,
			Todo:      append([]string{}, ps.TodoForClinic...),
		}
	}
	return v
}

func (p *Panel) notify() {
	p.mu.Lock()
	fn := p.onChange
	var v View
	if fn != nil {
		v = p.viewLocked()
	}
	p.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}
