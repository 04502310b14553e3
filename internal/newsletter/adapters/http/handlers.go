package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bulletinapp/bulletin/internal/idempotency"
	"github.com/bulletinapp/bulletin/internal/newsletter/app"
	"github.com/bulletinapp/bulletin/internal/newsletter/ports"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Handler exposes HTTP endpoints for subscriptions and newsletter issues.
type Handler struct {
	service  *app.Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(service *app.Service) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
	}
}

// Register binds the handlers to the provided ServeMux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/subscriptions", h.handleSubscriptions)
	mux.HandleFunc("/subscriptions/confirm", h.confirmSubscription)
	mux.HandleFunc("/admin/newsletters", h.handleNewsletters)
	mux.HandleFunc("/admin/newsletters/", h.handleNewsletterByID)
}

func (h *Handler) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.subscribe(w, r)
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form payload")
		return
	}

	input := app.SubscribeInput{
		Email: r.PostForm.Get("email"),
		Name:  r.PostForm.Get("name"),
	}

	if err := h.validate.Struct(input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	subscriber, err := h.service.Subscribe(r.Context(), input)
	if err != nil {
		if errors.Is(err, ports.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "email already subscribed")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"subscriber": subscriber})
}

func (h *Handler) confirmSubscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	token := r.URL.Query().Get("subscription_token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "subscription_token is required")
		return
	}

	if err := h.service.ConfirmSubscription(r.Context(), token); err != nil {
		if errors.Is(err, ports.ErrTokenNotFound) {
			writeError(w, http.StatusUnauthorized, "unknown subscription token")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

func (h *Handler) handleNewsletters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.publishNewsletter(w, r)
}

// publishNewsletter is the idempotent side-effecting endpoint: retries
// with the same Idempotency-Key receive the byte-identical response of the
// first successful attempt, and the fan-out happens once.
func (h *Handler) publishNewsletter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Authentication happens upstream; the fronting layer forwards the
	// authenticated principal. The key is scoped under it so keys from
	// different users cannot collide.
	caller, err := uuid.Parse(r.Header.Get("X-User-Id"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing or invalid user identity")
		return
	}

	key, err := idempotency.ParseKey(strings.TrimSpace(r.Header.Get("Idempotency-Key")))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var input app.PublishIssueInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	resp, err := h.service.PublishIssue(ctx, caller, key, input)
	if err != nil {
		if errors.Is(err, idempotency.ErrUnexpected) {
			writeError(w, http.StatusInternalServerError, "please retry the request")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := resp.Write(w); err != nil {
		// Headers and status are already on the wire; nothing to salvage.
		return
	}
}

func (h *Handler) handleNewsletterByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	trimmed := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/admin/newsletters/"), "/")
	id, err := uuid.Parse(trimmed)
	if err != nil {
		writeError(w, http.StatusNotFound, "issue not found")
		return
	}

	issue, err := h.service.GetIssue(r.Context(), id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			writeError(w, http.StatusNotFound, "issue not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"issue": issue})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
