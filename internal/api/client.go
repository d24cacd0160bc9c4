// Package api is the typed client for the vehicle assistant session API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/aminssutt/AurisTraining/internal/config"
	"github.com/aminssutt/AurisTraining/internal/session"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Client performs the session API calls. It keeps no state between calls.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTelemetry sets the tracer and meter used for spans and the request
// duration histogram.
func WithTelemetry(tracer trace.Tracer, meter metric.Meter) Option {
	return func(c *Client) {
		c.tracer = tracer
		if h, err := meter.Float64Histogram(
			"http.client.request.duration",
			metric.WithDescription("HTTP request duration in milliseconds"),
			metric.WithUnit("ms"),
		); err == nil {
			c.duration = h
		}
	}
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url %q: scheme must be http or https", baseURL)
	}

	h, _ := metricnoop.NewMeterProvider().Meter("").Float64Histogram("noop")
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     slog.New(slog.DiscardHandler),
		tracer:     tracenoop.NewTracerProvider().Tracer(""),
		duration:   h,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) sessionURL(sessionID, action string) string {
	return c.baseURL + "/session/" + url.PathEscape(sessionID) + "/" + action
}

// CreateSession creates a new session for the given vehicle.
func (c *Client) CreateSession(ctx context.Context, vehicleName string) (*session.Session, error) {
	name := strings.TrimSpace(vehicleName)
	if name == "" {
		return nil, &ValidationError{Kind: InvalidInput, Field: "vehicle name", Message: "must not be empty"}
	}

	body, err := json.Marshal(CreateSessionRequest{VehicleName: name})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/session/create", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp SessionResponse
	if err := c.do(ctx, "session.create", "", req, &resp); err != nil {
		return nil, err
	}
	if err := checkSession("session.create", resp.Session); err != nil {
		return nil, err
	}
	c.logger.Info("session created", "session_id", resp.Session.ID, "vehicle", resp.Session.VehicleName)
	return resp.Session, nil
}

// CheckFile applies the client-side admission rules for uploads. Only the
// content type is enforced; see OverSizeHint for the size ceiling.
func CheckFile(f File) error {
	if f.ContentType != PDFContentType {
		return &ValidationError{Kind: UnsupportedType, Field: f.Name, Message: "only PDF files are accepted"}
	}
	return nil
}

// OverSizeHint reports whether f is above the 50 MB ceiling the server
// enforces. The client only warns; the upload still goes out.
func OverSizeHint(f File) bool {
	return f.Size > config.MaxUploadBytes
}

// UploadFile sends one document to the session. It is never retried.
func (c *Client) UploadFile(ctx context.Context, sessionID string, f File) error {
	if err := CheckFile(f); err != nil {
		return err
	}
	if OverSizeHint(f) {
		c.logger.Warn("file is above the 50 MB ceiling, the server may refuse it",
			"session_id", sessionID, "file", f.Name, "size", f.Size)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
		hdr.Set("Content-Type", PDFContentType)
		part, err := mw.CreatePart(hdr)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, rc); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sessionURL(sessionID, "upload"), pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp Envelope
	if err := c.do(ctx, "session.upload", sessionID, req, &resp); err != nil {
		var se *ServerError
		if errors.As(err, &se) && se.StatusCode == http.StatusRequestEntityTooLarge {
			return &ValidationError{Kind: SizeExceeded, Field: f.Name, Message: UserMessage(err)}
		}
		return err
	}
	c.logger.Info("file uploaded", "session_id", sessionID, "file", f.Name, "size", f.Size)
	return nil
}

// StartProcessing triggers ingestion. It does not wait for completion.
func (c *Client) StartProcessing(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sessionURL(sessionID, "process"), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.do(ctx, "session.process", sessionID, req, nil); err != nil {
		return err
	}
	c.logger.Info("processing started", "session_id", sessionID)
	return nil
}

// GetStatus fetches the current server record of the session.
func (c *Client) GetStatus(ctx context.Context, sessionID string) (*session.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sessionURL(sessionID, "status"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var resp SessionResponse
	if err := c.do(ctx, "session.status", sessionID, req, &resp); err != nil {
		return nil, err
	}
	if err := checkSession("session.status", resp.Session); err != nil {
		return nil, err
	}
	return resp.Session, nil
}

// SendChatMessage asks the assistant a question and returns its answer.
func (c *Client) SendChatMessage(ctx context.Context, sessionID, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &ValidationError{Kind: InvalidInput, Field: "message", Message: "must not be empty"}
	}

	body, err := json.Marshal(ChatRequest{Message: text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sessionURL(sessionID, "chat"), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp ChatResponse
	if err := c.do(ctx, "session.chat", sessionID, req, &resp); err != nil {
		return "", err
	}
	if resp.Response == nil {
		return "", &TransportError{Op: "session.chat", Err: errors.New("response missing answer")}
	}
	return *resp.Response, nil
}

// Health checks that the API answers at all.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(ctx, "health", "", req, nil)
}

// do sends req and decodes the envelope into out. A nil out accepts any
// successful body (used by fire-and-forget calls).
func (c *Client) do(ctx context.Context, op, sessionID string, req *http.Request, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("session.id", sessionID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", "op", op, "session_id", sessionID, "error", err)
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.duration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(
		attribute.String("op", op),
		attribute.Int("status", resp.StatusCode),
	))
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.logger.Debug("response received", "op", op, "session_id", sessionID, "status", resp.StatusCode)

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	var env Envelope
	jsonErr := json.Unmarshal(body, &env)

	if resp.StatusCode == http.StatusNotFound && sessionID != "" {
		return &NotFoundError{SessionID: sessionID, Message: env.Error}
	}
	if jsonErr == nil && env.Success != nil && !*env.Success {
		if sessionID != "" && missingSession(env.Error) {
			return &NotFoundError{SessionID: sessionID, Message: env.Error}
		}
		return &ServerError{Op: op, StatusCode: resp.StatusCode, Message: env.Error}
	}
	if !ok {
		if jsonErr != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("unexpected HTTP %d with non-JSON body", resp.StatusCode)}
		}
		return &ServerError{Op: op, StatusCode: resp.StatusCode, Message: fmt.Sprintf("server returned %s", resp.Status)}
	}

	if out == nil {
		return nil
	}
	if jsonErr != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("malformed response: %w", jsonErr)}
	}
	if env.Success == nil {
		return &TransportError{Op: op, Err: errors.New("malformed response: missing success flag")}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("malformed response: %w", err)}
	}
	return nil
}

// missingSession reports whether a failure text says the session id did not
// resolve. The backend answers in English or French.
func missingSession(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "introuvable")
}

func checkSession(op string, s *session.Session) error {
	if s == nil {
		return &TransportError{Op: op, Err: errors.New("response missing session")}
	}
	if err := s.Validate(); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("malformed session: %w", err)}
	}
	return nil
}
