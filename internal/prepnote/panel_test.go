package prepnote

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/previsit/internal/clipboard"
	"github.com/wolfman30/previsit/internal/observability/metrics"
	"github.com/wolfman30/previsit/internal/scheduling"
	"github.com/wolfman30/previsit/pkg/logging"
)

func newSummary(subjective, plan string) *scheduling.BookingSummary {
	return &scheduling.BookingSummary{
		Appointment: scheduling.Appointment{ID: 7, Status: "booked", Location: "Main Clinic"},
		Risk: &scheduling.ClinicalRisk{
			RiskScore:          64,
			RiskLevel:          scheduling.RiskMedium,
			Factors:            []string{"COPD", "age > 65"},
			RecommendedUrgency: scheduling.UrgencyWithin7Days,
		},
		PrepSummary: &scheduling.PrepSummary{
			PatientSnapshot: &scheduling.PatientSnapshot{Name: "Ada King", Age: 70},
			TodoForClinic:   []string{"Verify medication list"},
			NoteTemplate: &scheduling.NoteTemplate{
				Subjective: json.RawMessage(subjective),
				Plan:       json.RawMessage(plan),
			},
		},
	}
}

func newTestPanel(cb clipboard.Clipboard) *Panel {
	return NewPanel(cb, "sess-1", logging.New("error"), metrics.New(prometheus.NewRegistry()))
}

func TestPublishSeedsDraft(t *testing.T) {
	p := newTestPanel(clipboard.NewMemory())
	p.Publish(newSummary(`["Chief complaint","HPI"]`, `"Follow-up"`))

	v := p.View()
	assert.True(t, v.HasSummary)
	assert.False(t, v.EditMode)
	assert.Equal(t, "Chief complaint\nHPI", v.Draft.Subjective)
	assert.Equal(t, "", v.Draft.Objective)
	assert.Equal(t, "Follow-up", v.Draft.Plan)
	require.Len(t, v.Sections, 2)
	assert.Equal(t, "S – Subjective", v.Sections[0].Label)
	assert.Equal(t, "P – Plan", v.Sections[1].Label)
	require.NotNil(t, v.Booking)
	assert.Equal(t, "Risk: MEDIUM (64)", v.Booking.RiskLabel)
	assert.Equal(t, "COPD, age > 65", v.Booking.KeyFactors)
	require.NotNil(t, v.Context)
	assert.Equal(t, []string{"Verify medication list"}, v.Context.Todo)
}

func TestPublishSameSummaryKeepsEdits(t *testing.T) {
	p := newTestPanel(clipboard.NewMemory())
	s := newSummary(`"seed"`, `null`)
	p.Publish(s)
	p.EditSection(Subjective, "edited")
	p.ToggleEditMode()

	p.Publish(s)

	v := p.View()
	assert.Equal(t, "edited", v.Draft.Subjective)
	assert.True(t, v.EditMode)
}

func TestPublishNewSummaryReseeds(t *testing.T) {
	cb := clipboard.NewMemory()
	p := newTestPanel(cb)
	p.Publish(newSummary(`"first"`, `null`))
	p.EditSection(Plan, "custom plan")
	p.ToggleEditMode()
	require.True(t, p.Copy(context.Background()))

	// Same content, new identity: still a full reset.
	p.Publish(newSummary(`"first"`, `null`))

	v := p.View()
	assert.Equal(t, "first", v.Draft.Subjective)
	assert.Equal(t, "", v.Draft.Plan)
	assert.False(t, v.EditMode)
	assert.False(t, v.Copied)
}

func TestPublishNilClears(t *testing.T) {
	p := newTestPanel(clipboard.NewMemory())
	p.Publish(newSummary(`"x"`, `"y"`))
	p.Publish(nil)

	v := p.View()
	assert.False(t, v.HasSummary)
	assert.True(t, v.Empty)
	assert.False(t, v.CanExport)
	assert.Nil(t, v.Booking)
	assert.Empty(t, v.Sections)
}

func TestPublishWithoutTemplate(t *testing.T) {
	p := newTestPanel(clipboard.NewMemory())
	p.Publish(&scheduling.BookingSummary{Appointment: scheduling.Appointment{ID: 1}})

	v := p.View()
	assert.True(t, v.HasSummary)
	assert.True(t, v.Empty)
	assert.Nil(t, v.Context)
}

func TestCopyWritesCombinedNote(t *testing.T) {
	cb := clipboard.NewMemory()
	p := newTestPanel(cb)
	p.Publish(newSummary(`null`, `null`))
	p.EditSection(Plan, "Follow up in 2 weeks")

	require.True(t, p.Copy(context.Background()))
	got, ok := cb.Last("sess-1")
	require.True(t, ok)
	assert.Equal(t, "P: Follow up in 2 weeks", got)
	assert.True(t, p.View().Copied)

	p.EditSection(Plan, "Follow up in 3 weeks")
	assert.False(t, p.View().Copied, "an edit must clear the confirmation")
}

func TestCopyEmptyIsNoop(t *testing.T) {
	calls := 0
	p := newTestPanel(clipboard.Func(func(context.Context, string, string) error {
		calls++
		return nil
	}))
	p.Publish(newSummary(`"  "`, `null`))

	assert.False(t, p.Copy(context.Background()))
	assert.Equal(t, 0, calls)
	assert.False(t, p.View().CanExport)
}

func TestCopyFailureClearsFlagSilently(t *testing.T) {
	fail := false
	p := newTestPanel(clipboard.Func(func(context.Context, string, string) error {
		if fail {
			return errors.New("clipboard unavailable")
		}
		return nil
	}))
	p.Publish(newSummary(`"note"`, `null`))

	require.True(t, p.Copy(context.Background()))
	fail = true
	assert.False(t, p.Copy(context.Background()))
	assert.False(t, p.View().Copied)
}

func TestCopyDuringEditDoesNotConfirmStaleText(t *testing.T) {
	var p *Panel
	p = newTestPanel(clipboard.Func(func(context.Context, string, string) error {
		p.EditSection(Subjective, "changed mid-copy")
		return nil
	}))
	p.Publish(newSummary(`"original"`, `null`))

	assert.False(t, p.Copy(context.Background()))
	assert.False(t, p.View().Copied)
}

func TestToggleEditModeAndObserver(t *testing.T) {
	p := newTestPanel(clipboard.NewMemory())
	var views []View
	p.OnChange(func(v View) { views = append(views, v) })

	assert.True(t, p.ToggleEditMode())
	assert.False(t, p.ToggleEditMode())
	p.EditSection(Objective, "BP 140/90")

	require.Len(t, views, 3)
	assert.True(t, views[0].EditMode)
	assert.Equal(t, "O: BP 140/90", views[2].Combined)
}

func TestCombinedNoteIsIdempotent(t *testing.T) {
	p := newTestPanel(clipboard.NewMemory())
	p.Publish(newSummary(`["  a  ", "b "]`, `"  plan  "`))
	first := p.CombinedNote()
	assert.Equal(t, first, p.CombinedNote())
	assert.Equal(t, "S: a  \nb\n\nP: plan", first)
}
