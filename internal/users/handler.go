// internal/users/handler.go
package users

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/httpx"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes registers the user endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/users", h.HandleCreate)
	r.Get("/users", h.HandleList)
	r.Get("/users/{id}", h.HandleGet)
	r.Put("/users/{id}", h.HandleUpdate)
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req NewUser
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteValidation(w, err.Error())
		return
	}

	var details []string
	if strings.TrimSpace(req.Name) == "" {
		details = append(details, `"name" is required`)
	}
	if req.Email == "" {
		details = append(details, `"email" is required`)
	} else if !validEmail(req.Email) {
		details = append(details, `"email" must be a valid email`)
	}
	if req.Role != "" && !req.Role.Valid() {
		details = append(details, `"role" must be one of [student, faculty, admin]`)
	}
	if len(details) > 0 {
		httpx.WriteValidation(w, details...)
		return
	}

	user, err := h.service.CreateUser(r.Context(), req)
	switch {
	case errors.Is(err, ErrEmailTaken):
		httpx.WriteMessage(w, http.StatusBadRequest, "User with this email already exists")
	case errors.Is(err, ErrRateLimited):
		httpx.WriteMessage(w, http.StatusTooManyRequests, "Too many requests, please try again later")
	case err != nil:
		httpx.WriteInternal(w, r, "Error creating user", err)
	default:
		httpx.WriteJSON(w, http.StatusCreated, user)
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(r, "id")
	if !ok {
		httpx.WriteValidation(w, `"id" must be a positive integer`)
		return
	}

	user, err := h.service.GetUser(r.Context(), id)
	switch {
	case errors.Is(err, ErrUserNotFound):
		httpx.WriteMessage(w, http.StatusNotFound, "User not found")
	case err != nil:
		httpx.WriteInternal(w, r, "Error getting user", err)
	default:
		httpx.WriteJSON(w, http.StatusOK, user)
	}
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(r, "id")
	if !ok {
		httpx.WriteValidation(w, `"id" must be a positive integer`)
		return
	}

	var req UserUpdate
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteValidation(w, err.Error())
		return
	}

	var details []string
	if req.Name == nil && req.Email == nil {
		details = append(details, `"value" must have at least 1 key`)
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		details = append(details, `"name" is not allowed to be empty`)
	}
	if req.Email != nil && !validEmail(*req.Email) {
		details = append(details, `"email" must be a valid email`)
	}
	if len(details) > 0 {
		httpx.WriteValidation(w, details...)
		return
	}

	user, err := h.service.UpdateUser(r.Context(), id, req)
	switch {
	case errors.Is(err, ErrUserNotFound):
		httpx.WriteMessage(w, http.StatusNotFound, "User not found")
	case errors.Is(err, ErrEmailTaken):
		httpx.WriteMessage(w, http.StatusBadRequest, "Email already in use")
	case err != nil:
		httpx.WriteInternal(w, r, "Error updating user", err)
	default:
		httpx.WriteJSON(w, http.StatusOK, user)
	}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListUsers(r.Context(), ListQuery{
		Page:  httpx.QueryInt(r, "page", 1),
		Limit: httpx.QueryInt(r, "limit", 10),
	})
	if err != nil {
		httpx.WriteInternal(w, r, "Error listing users", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}
