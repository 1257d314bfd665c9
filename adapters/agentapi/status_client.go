package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/domain/entities"
)

const scopeName = "github.com/satriahrh/voicerelay/adapters/agentapi"

var tracer = otel.Tracer(scopeName)

// StatusClient reports agent status to the agent platform HTTP API
type StatusClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewStatusClient creates a client for {baseURL}/agents/{agentId}/status
func NewStatusClient(baseURL string, logger *zap.Logger) *StatusClient {
	return &StatusClient{
		baseURL: baseURL,
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "agentapi " + r.Method + " " + r.URL.Path
			}),
		)},
		logger: logger,
	}
}

type statusRequest struct {
	Status entities.AgentStatus `json:"status"`
}

// UpdateStatus posts the status for agent. Any non-2xx response is an error.
func (c *StatusClient) UpdateStatus(ctx context.Context, agent entities.AgentCredentials, status entities.AgentStatus) error {
	ctx, span := tracer.Start(ctx, "update agent status",
		trace.WithAttributes(
			attribute.String("agent.id", agent.AgentID),
			attribute.String("agent.status", string(status)),
		))
	defer span.End()

	body, err := json.Marshal(statusRequest{Status: status})
	if err != nil {
		return c.fail(span, fmt.Errorf("failed to encode status: %w", err))
	}

	endpoint := fmt.Sprintf("%s/agents/%s/status", c.baseURL, url.PathEscape(agent.AgentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return c.fail(span, fmt.Errorf("failed to build status request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", agent.APIKey())

	resp, err := c.client.Do(req)
	if err != nil {
		return c.fail(span, fmt.Errorf("failed to post status: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fail(span, fmt.Errorf("status update rejected: %s", resp.Status))
	}

	c.logger.Info("Marked agent status",
		zap.String("agentID", agent.AgentID),
		zap.String("status", string(status)))
	return nil
}

func (c *StatusClient) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
