package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware" // For GetReqID
	"github.com/go-playground/validator/v10"

	"github.com/aradsms/textsms/internal/public_api_service/middleware"
	"github.com/aradsms/textsms/internal/sms_sending_service/adapters/view"
	"github.com/aradsms/textsms/internal/sms_sending_service/app"
	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
)

// QueueRoutes is the connection and the queues the worker consumes. Queued
// requests may only name these; empty values mean the defaults.
type QueueRoutes struct {
	Connection string
	Queues     []string
}

func (q QueueRoutes) check(connection, queue string) error {
	if connection != "" && connection != q.Connection {
		return fmt.Errorf("connection %q is not consumed", connection)
	}
	if queue != "" && !slices.Contains(q.Queues, queue) {
		return fmt.Errorf("queue %q is not consumed", queue)
	}
	return nil
}

type MessageHandler struct {
	factory  app.Factory
	routes   QueueRoutes
	validate *validator.Validate
	logger   *slog.Logger
}

func NewMessageHandler(factory app.Factory, routes QueueRoutes, validate *validator.Validate, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		factory:  factory,
		routes:   routes,
		validate: validate,
		logger:   logger.With("handler", "message"),
	}
}

// RegisterRoutes registers message routes with the given router.
func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Post("/messages", h.handleSendMessage)
	r.Post("/messages/preview", h.handlePreviewMessage)
	r.Get("/providers/{provider}/failures", h.handleGetFailures)
}

func (h *MessageHandler) requestLogger(r *http.Request) *slog.Logger {
	logger := h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
	if user, ok := middleware.UserFromContext(r.Context()); ok {
		logger = logger.With("auth_user_id", user.ID)
	}
	return logger
}

func (h *MessageHandler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.ErrorContext(ctx, "Failed to decode send message request", "error", err)
		h.jsonError(w, logger, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := h.validate.StructCtx(ctx, req); err != nil {
		logger.WarnContext(ctx, "Validation failed for send message request", "error", err)
		h.jsonError(w, logger, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.routes.check(req.Connection, req.QueueName); err != nil {
		logger.WarnContext(ctx, "Rejected queue route", "connection", req.Connection, "queue", req.QueueName)
		h.jsonError(w, logger, "Invalid queue route: "+err.Error(), http.StatusBadRequest)
		return
	}

	provider, err := h.factory.Resolve(req.Provider)
	if err != nil {
		h.jsonError(w, logger, err.Error(), statusFor(err, http.StatusInternalServerError))
		return
	}
	logger = logger.With("provider", provider.Name())

	msg := app.NewTextMessage()
	msg.Provider(provider.Name()).
		Locale(req.Locale).
		OnQueue(req.QueueName).
		OnConnection(req.Connection)
	applyContent(&msg.Textable, req.Text, req.View, req.Data)
	if req.From != nil {
		msg.From(req.From.Number, req.From.Carrier)
	}
	for _, to := range req.To {
		msg.To(to.Number, to.Carrier)
	}

	if req.Queue || req.DelaySeconds > 0 {
		if req.DelaySeconds > 0 {
			msg.Delay(time.Duration(req.DelaySeconds) * time.Second)
		}
		jobID, err := provider.Queue(ctx, msg, req.QueueName)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to queue message", "error", err)
			h.jsonError(w, logger, "Failed to queue message: "+err.Error(), statusFor(err, http.StatusInternalServerError))
			return
		}
		logger.InfoContext(ctx, "Message queued", "job_id", jobID, "recipients", len(req.To), "delay_seconds", req.DelaySeconds)
		h.writeJSON(ctx, w, logger, http.StatusAccepted, SendMessageResponse{
			Status: "queued", Provider: provider.Name(), JobID: jobID,
		})
		return
	}

	if err := app.Send(ctx, msg, h.factory); err != nil {
		logger.ErrorContext(ctx, "Failed to send message", "error", err)
		h.jsonError(w, logger, "Failed to send message: "+err.Error(), statusFor(err, http.StatusBadGateway))
		return
	}
	failures := provider.Failures()
	logger.InfoContext(ctx, "Message sent", "recipients", len(req.To), "failures", len(failures))
	h.writeJSON(ctx, w, logger, http.StatusOK, SendMessageResponse{
		Status: "sent", Provider: provider.Name(), Failures: failures,
	})
}

func (h *MessageHandler) handlePreviewMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	var req PreviewMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.ErrorContext(ctx, "Failed to decode preview request", "error", err)
		h.jsonError(w, logger, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := h.validate.StructCtx(ctx, req); err != nil {
		logger.WarnContext(ctx, "Validation failed for preview request", "error", err)
		h.jsonError(w, logger, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	msg := app.NewTextMessage()
	msg.Provider(req.Provider).Locale(req.Locale)
	applyContent(&msg.Textable, req.Text, req.View, req.Data)

	body, err := app.Render(ctx, msg, h.factory)
	if err != nil {
		logger.WarnContext(ctx, "Failed to render preview", "error", err)
		h.jsonError(w, logger, "Failed to render message: "+err.Error(), statusFor(err, http.StatusInternalServerError))
		return
	}
	h.writeJSON(ctx, w, logger, http.StatusOK, PreviewMessageResponse{Body: body})
}

func (h *MessageHandler) handleGetFailures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	name := chi.URLParam(r, "provider")
	provider, err := h.factory.Resolve(name)
	if err != nil {
		h.jsonError(w, logger, err.Error(), statusFor(err, http.StatusInternalServerError))
		return
	}
	failures := provider.Failures()
	if failures == nil {
		failures = []string{}
	}
	h.writeJSON(ctx, w, logger, http.StatusOK, ProviderFailuresResponse{Provider: provider.Name(), Failures: failures})
}

func applyContent(t *app.Textable, text, viewName string, data map[string]any) {
	if viewName != "" {
		t.View(viewName, data)
		return
	}
	t.Text(text).WithData(data)
}

// statusFor maps domain errors to HTTP statuses, falling back to fallback.
func statusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, domain.ErrUndefinedProvider):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrInvalidView),
		errors.Is(err, domain.ErrMissingContent),
		errors.Is(err, domain.ErrMissingCarrier),
		errors.Is(err, domain.ErrUnknownGateway),
		errors.Is(err, view.ErrTemplateNotFound):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrQueueUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrUnsupportedTransport),
		errors.Is(err, domain.ErrMailerUnavailable):
		return http.StatusInternalServerError
	}
	return fallback
}

func (h *MessageHandler) writeJSON(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.ErrorContext(ctx, "Failed to write response", "error", err)
	}
}

func (h *MessageHandler) jsonError(w http.ResponseWriter, logger *slog.Logger, message string, statusCode int) {
	logger.Warn("API Error Response", "status_code", statusCode, "message", message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(GenericErrorResponse{Error: message})
}
