package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/auth"
	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/observability"
)

const (
	tracerName      = "github.com/spec-kit/ticket-desk/internal/gateway"
	maxErrorSnippet = 256
)

// HTTPGateway talks to the remote ticket REST API.
type HTTPGateway struct {
	client  *http.Client
	baseURL string
	creds   auth.CredentialProvider
	metrics *observability.Metrics
	tracer  trace.Tracer
	logger  *zap.Logger
}

// Option configures an HTTPGateway.
type Option func(*HTTPGateway)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *HTTPGateway) { g.client = c }
}

// WithMetrics records request latency and outcome.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *HTTPGateway) { g.metrics = m }
}

// WithLogger sets the logger used for failed requests.
func WithLogger(l *zap.Logger) Option {
	return func(g *HTTPGateway) { g.logger = l }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(g *HTTPGateway) { g.tracer = t }
}

// NewHTTPGateway builds a gateway client rooted at baseURL.
func NewHTTPGateway(baseURL string, creds auth.CredentialProvider, opts ...Option) *HTTPGateway {
	g := &HTTPGateway{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		tracer:  otel.Tracer(tracerName),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *HTTPGateway) List(ctx context.Context) ([]domain.Ticket, error) {
	env, err := g.do(ctx, "list", http.MethodGet, "/tickets", nil, nil)
	if err != nil {
		return nil, err
	}
	var items []wireTicket
	if err := decodeData(env, &items); err != nil {
		return nil, err
	}
	tickets := make([]domain.Ticket, 0, len(items))
	for _, item := range items {
		tickets = append(tickets, item.toDomain())
	}
	return tickets, nil
}

func (g *HTTPGateway) Create(ctx context.Context, draft domain.TicketDraft) (domain.Ticket, error) {
	env, err := g.do(ctx, "create", http.MethodPost, "/tickets", nil, newDraftRequest(draft))
	if err != nil {
		return domain.Ticket{}, err
	}
	var item wireTicket
	if err := decodeData(env, &item); err != nil {
		return domain.Ticket{}, err
	}
	ticket := item.toDomain()
	if ticket.ID == "" {
		return domain.Ticket{}, fmt.Errorf("%w: created ticket has no id", ErrRejected)
	}
	return ticket, nil
}

func (g *HTTPGateway) Update(ctx context.Context, id string, patch domain.TicketPatch) (*domain.Ticket, error) {
	query := url.Values{"id": {id}}
	env, err := g.do(ctx, "update", http.MethodPost, "/tickets/update", query, newPatchRequest(patch))
	if err != nil {
		return nil, err
	}
	if !hasData(env) {
		return nil, nil
	}
	var item wireTicket
	if err := decodeData(env, &item); err != nil {
		return nil, err
	}
	ticket := item.toDomain()
	if ticket.ID == "" {
		ticket.ID = id
	}
	return &ticket, nil
}

func (g *HTTPGateway) Delete(ctx context.Context, id string) error {
	query := url.Values{"id": {id}}
	_, err := g.do(ctx, "delete", http.MethodDelete, "/tickets/delete", query, nil)
	return err
}

func (g *HTTPGateway) AppendChat(ctx context.Context, id, text string) (domain.Ticket, error) {
	query := url.Values{"id": {id}}
	env, err := g.do(ctx, "chat", http.MethodPost, "/tickets/chat", query, chatRequest{TicketID: id, Message: text})
	if err != nil {
		return domain.Ticket{}, err
	}
	var item wireTicket
	if err := decodeData(env, &item); err != nil {
		return domain.Ticket{}, err
	}
	return item.toDomain(), nil
}

func (g *HTTPGateway) do(ctx context.Context, op, method, path string, query url.Values, body any) (env *envelope, err error) {
	ctx, span := g.tracer.Start(ctx, "gateway."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	))
	start := time.Now()
	defer func() {
		g.metrics.ObserveGatewayRequest(op, gatewayOutcome(err), time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			fields := []zap.Field{zap.String("op", op), zap.Error(err)}
			if sc := span.SpanContext(); sc.HasTraceID() {
				fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
			}
			g.logger.Debug("gateway request failed", fields...)
		}
		span.End()
	}()

	token, err := g.creds.Token(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := g.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	env = &envelope{Success: true}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(respBody, env); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if !env.Success {
		if env.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrRejected, env.Message)
		}
		return nil, ErrRejected
	}
	return env, nil
}

func hasData(env *envelope) bool {
	data := bytes.TrimSpace(env.Data)
	return len(data) > 0 && !bytes.Equal(data, []byte("null"))
}

func decodeData(env *envelope, out any) error {
	if !hasData(env) {
		return fmt.Errorf("%w: response has no data", ErrRejected)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		return env.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorSnippet {
		msg = msg[:maxErrorSnippet]
	}
	return msg
}

func gatewayOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsUnauthorized(err):
		return "unauthorized"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrRejected):
		return "rejected"
	default:
		return "error"
	}
}
