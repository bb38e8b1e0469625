package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/accounts/internal/platform/httpx"
)

// Service is the store contract consumed by the HTTP layer.
type Service interface {
	Create(ctx context.Context, in CreateInput) (User, error)
	ListActive(ctx context.Context) ([]User, error)
	GetByID(ctx context.Context, id int64) (User, bool, error)
	Update(ctx context.Context, id int64, in UpdateInput) (User, bool, error)
	SoftDelete(ctx context.Context, id int64) (bool, error)
	VerifyCredentials(ctx context.Context, username, password string) (bool, error)
}

// Handler manages user management endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Post("/", h.createUser)
	r.Post("/verify", h.verifyCredentials)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.getUser)
		r.Patch("/", h.updateUser)
		r.Put("/", h.updateUser)
		r.Delete("/", h.deleteUser)
	})
}

type verifyRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

type validationProblem struct {
	httpx.ProblemDetail
	Fields map[string]string `json:"fields"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListActive(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "request body must be a JSON object")
		return
	}
	user, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	user, found, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if !found {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "user not found")
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "request body must be a JSON object")
		return
	}
	user, found, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if !found {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "user not found")
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	deleted, err := h.service.SoftDelete(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if !deleted {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "user not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) verifyCredentials(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "request body must be a JSON object")
		return
	}
	valid, err := h.service.VerifyCredentials(r.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, verifyResponse{Valid: valid})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "user id must be an integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.JSON(w, http.StatusUnprocessableEntity, validationProblem{
			ProblemDetail: httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusUnprocessableEntity},
			Fields:        verr.Fields,
		})
	case errors.Is(err, ErrDuplicate):
		field, _ := DuplicateField(err)
		httpx.Problem(w, http.StatusConflict, "Duplicate", field+" is already taken")
	case errors.Is(err, ErrNotInitialized):
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "user store is not ready")
	default:
		h.logger.Error("users request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
