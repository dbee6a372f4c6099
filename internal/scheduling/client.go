package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/previsit/internal/observability/metrics"
	"github.com/wolfman30/previsit/pkg/logging"
)

const defaultTimeout = 10 * time.Second

// Endpoint names used for spans, metrics and errors.
const (
	EndpointSearchPatients      = "search_patients"
	EndpointStructureIntake     = "structure_intake"
	EndpointAvailableSlots      = "available_slots"
	EndpointBook                = "book"
	EndpointPatientAppointments = "patient_appointments"
	EndpointAppointmentDetails  = "appointment_details"
)

var schedulingTracer = otel.Tracer("previsit.internal.scheduling")

// Client talks to the scheduling backend that owns intake structuring, risk
// scoring, slot generation, booking and prep summaries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// Config holds configuration for the scheduling client
type Config struct {
	BaseURL    string // e.g. "http://localhost:8000"
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	Metrics    *metrics.Metrics
}

// New creates a new scheduling backend client
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("scheduling: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("scheduling: invalid BaseURL: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		metrics:    cfg.Metrics,
	}, nil
}

// SearchPatients lists patients, optionally filtered by a search string.
// GET /patients?query=
func (c *Client) SearchPatients(ctx context.Context, query string) ([]Patient, error) {
	path := "/patients"
	if q := strings.TrimSpace(query); q != "" {
		path += "?" + url.Values{"query": []string{q}}.Encode()
	}
	var out []Patient
	if err := c.do(ctx, EndpointSearchPatients, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StructureIntake turns a free-text narrative into a structured intake.
// POST /intake/structure
func (c *Client) StructureIntake(ctx context.Context, patientID int64, narrative string) (*IntakeResult, error) {
	var out IntakeResult
	req := intakeRequest{PatientID: patientID, Narrative: narrative}
	if err := c.do(ctx, EndpointStructureIntake, http.MethodPost, "/intake/structure", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AvailableSlots scores the reason-for-visit and returns recommended and other open slots.
// POST /appointments/available
func (c *Client) AvailableSlots(ctx context.Context, patientID int64, reason string) (*AvailableSlots, error) {
	var out AvailableSlots
	req := availableSlotsRequest{PatientID: patientID, ReasonForVisit: reason}
	if err := c.do(ctx, EndpointAvailableSlots, http.MethodPost, "/appointments/available", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Book binds an open slot to the patient and returns the booking summary.
// POST /appointments/book
func (c *Client) Book(ctx context.Context, patientID, appointmentID int64, reason string) (*BookingSummary, error) {
	var out BookingSummary
	req := bookRequest{PatientID: patientID, AppointmentID: appointmentID, ReasonForVisit: reason}
	if err := c.do(ctx, EndpointBook, http.MethodPost, "/appointments/book", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PatientAppointments lists the patient's booked appointments.
// GET /patients/{id}/appointments
func (c *Client) PatientAppointments(ctx context.Context, patientID int64) ([]Appointment, error) {
	var out patientAppointmentsResponse
	path := "/patients/" + strconv.FormatInt(patientID, 10) + "/appointments"
	if err := c.do(ctx, EndpointPatientAppointments, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Appointments, nil
}

// AppointmentDetails replays the stored booking summary of a booked appointment.
// GET /appointments/{id}/details
func (c *Client) AppointmentDetails(ctx context.Context, appointmentID int64) (*BookingSummary, error) {
	var out BookingSummary
	path := "/appointments/" + strconv.FormatInt(appointmentID, 10) + "/details"
	if err := c.do(ctx, EndpointAppointmentDetails, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, in, out any) error {
	ctx, span := schedulingTracer.Start(ctx, "scheduling."+endpoint)
	defer span.End()
	requestID := uuid.NewString()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("previsit.endpoint", endpoint),
		attribute.String("previsit.request_id", requestID),
	)
	logger := c.logger.WithTrace(ctx)

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("scheduling: failed to marshal %s request: %w", endpoint, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("scheduling: failed to create %s request: %w", endpoint, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	logger.Debug("scheduling request", "endpoint", endpoint, "method", method, "path", path, "request_id", requestID)
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.ObserveBackend(endpoint, 0, time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		logger.Error("scheduling request failed", "endpoint", endpoint, "request_id", requestID, "error", err)
		return fmt.Errorf("scheduling: %s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveBackend(endpoint, resp.StatusCode, time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := parseAPIError(endpoint, resp.StatusCode, raw)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, "status")
		logger.Warn("scheduling API error", "endpoint", endpoint, "status", resp.StatusCode, "request_id", requestID, "detail", apiErr.Message)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		return fmt.Errorf("scheduling: failed to decode %s response: %w", endpoint, err)
	}
	return nil
}
