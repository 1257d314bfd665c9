package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/domain/entities"
	"github.com/satriahrh/voicerelay/domain/repositories"
	"github.com/satriahrh/voicerelay/internal/auth"
	"github.com/satriahrh/voicerelay/internal/websocket"
	"github.com/satriahrh/voicerelay/usecase"
)

const claimsKey = "claims"

// InstanceService manages agent instances
type InstanceService interface {
	Connect(ctx context.Context, req usecase.ConnectRequest) (*entities.Instance, error)
	Disconnect(ctx context.Context, id string) (*entities.Instance, error)
	Interrupt(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*usecase.InstanceView, error)
	List(ctx context.Context) ([]*usecase.InstanceView, error)
}

type handler struct {
	hub       *websocket.Hub
	instances InstanceService
	issuer    *auth.Issuer
	logger    *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *websocket.Hub, instances InstanceService, issuer *auth.Issuer, logger *zap.Logger) {
	h := &handler{
		hub:       hub,
		instances: instances,
		issuer:    issuer,
		logger:    logger,
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "voicerelay",
		})
	})

	// API v1 routes, operator tokens only
	v1 := e.Group("/api/v1", h.requireRole(auth.RoleOperator))

	v1.POST("/instances", h.connectInstance)
	v1.GET("/instances", h.listInstances)
	v1.GET("/instances/:id", h.getInstance)
	v1.POST("/instances/:id/interrupt", h.interruptInstance)
	v1.DELETE("/instances/:id", h.disconnectInstance)

	v1.POST("/outputs/:id/token", h.outputToken)

	// WebSocket endpoint for audio outputs with JWT validation
	e.GET("/ws/outputs", h.outputWebSocket)
}

func (h *handler) connectInstance(c echo.Context) error {
	var req ConnectInstanceRequest

	if err := c.Bind(&req); err != nil {
		h.logger.Warn("Failed to bind connect request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.AgentID == "" || req.AgentSecret == "" || req.OutputID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "agent_id, agent_secret and output_id are required",
		})
	}

	instance, err := h.instances.Connect(c.Request().Context(), usecase.ConnectRequest{
		AgentID:     req.AgentID,
		AgentSecret: req.AgentSecret,
		OutputID:    req.OutputID,
	})
	if err != nil {
		return h.writeError(c, err)
	}

	h.logger.Info("Instance connected",
		zap.String("instance_id", instance.ID),
		zap.String("agent_id", instance.Agent.AgentID),
		zap.String("output_id", instance.OutputID))

	return c.JSON(http.StatusCreated, instance)
}

func (h *handler) listInstances(c echo.Context) error {
	instances, err := h.instances.List(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, InstanceListResponse{Instances: instances})
}

func (h *handler) getInstance(c echo.Context) error {
	view, err := h.instances.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *handler) interruptInstance(c echo.Context) error {
	if err := h.instances.Interrupt(c.Request().Context(), c.Param("id")); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *handler) disconnectInstance(c echo.Context) error {
	instance, err := h.instances.Disconnect(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, instance)
}

func (h *handler) outputToken(c echo.Context) error {
	outputID := c.Param("id")

	token, expiresAt, err := h.issuer.GenerateOutputToken(outputID)
	if err != nil {
		h.logger.Error("Failed to generate output token",
			zap.String("output_id", outputID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate output token",
		})
	}

	return c.JSON(http.StatusOK, OutputTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		OutputID:  outputID,
	})
}

// writeError maps service errors to HTTP responses
func (h *handler) writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repositories.ErrInstanceNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Instance not found"})
	case errors.Is(err, repositories.ErrOutputBusy):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "output_busy", Message: err.Error()})
	case errors.Is(err, usecase.ErrInstanceNotRunning):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "not_running", Message: err.Error()})
	case errors.Is(err, usecase.ErrAgentUnreachable):
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "agent_unreachable", Message: err.Error()})
	default:
		h.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Internal server error"})
	}
}

// bearerToken extracts a token from the Authorization header, falling back
// to the token query parameter when allowQuery is set
func bearerToken(c echo.Context, allowQuery bool) string {
	authHeader := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if allowQuery {
		return c.QueryParam("token")
	}
	return ""
}

// requireRole rejects requests without a valid token of role
func (h *handler) requireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, status, resp := h.authenticate(bearerToken(c, false), role)
			if claims == nil {
				return c.JSON(status, resp)
			}
			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

func (h *handler) authenticate(token, role string) (*auth.JWTClaims, int, ErrorResponse) {
	if token == "" {
		return nil, http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required",
		}
	}

	claims, err := h.issuer.ValidateToken(token)
	if err != nil {
		h.logger.Warn("Rejected invalid token", zap.Error(err))
		return nil, http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		}
	}

	if claims.Role != role {
		h.logger.Warn("Rejected token with wrong role",
			zap.String("role", claims.Role),
			zap.String("required", role))
		return nil, http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Token role not allowed here",
		}
	}

	return claims, 0, ErrorResponse{}
}

// outputWebSocket handles audio output connections with JWT authentication
func (h *handler) outputWebSocket(c echo.Context) error {
	claims, status, resp := h.authenticate(bearerToken(c, true), auth.RoleOutput)
	if claims == nil {
		return c.JSON(status, resp)
	}

	outputID := claims.OutputID
	if outputID == "" {
		h.logger.Error("WebSocket connection rejected: missing output ID in token")
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "Output ID not found in token",
		})
	}

	h.logger.Info("WebSocket connection authenticated", zap.String("output_id", outputID))

	return websocket.HandleWebSocketWithAuth(h.hub, c, outputID, h.logger)
}
