// internal/books/handler.go
package books

import (
	"errors"
	"net/http"
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

// Routes registers the book endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/books", h.HandleAdd)
	r.Get("/books", h.HandleSearch)
	r.Get("/books/{id}", h.HandleGet)
	r.Put("/books/{id}", h.HandleUpdate)
	r.Patch("/books/{id}/availability", h.HandleAvailability)
	r.Delete("/books/{id}", h.HandleDelete)
}

type addRequest struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	ISBN   string `json:"isbn"`
	Copies *int   `json:"copies"`
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteValidation(w, err.Error())
		return
	}

	var details []string
	if strings.TrimSpace(req.Title) == "" {
		details = append(details, `"title" is required`)
	}
	if strings.TrimSpace(req.Author) == "" {
		details = append(details, `"author" is required`)
	}
	if strings.TrimSpace(req.ISBN) == "" {
		details = append(details, `"isbn" is required`)
	}
	copies := 1
	if req.Copies != nil {
		copies = *req.Copies
		if copies < 1 {
			details = append(details, `"copies" must be greater than or equal to 1`)
		}
	}
	if len(details) > 0 {
		httpx.WriteValidation(w, details...)
		return
	}

	book, err := h.service.AddBook(r.Context(), NewBook{Title: req.Title, Author: req.Author, ISBN: req.ISBN, Copies: copies})
	switch {
	case errors.Is(err, ErrISBNTaken):
		httpx.WriteMessage(w, http.StatusBadRequest, "Book with this ISBN already exists")
	case err != nil:
		httpx.WriteInternal(w, r, "Error creating book", err)
	default:
		httpx.WriteJSON(w, http.StatusCreated, book)
	}
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.SearchBooks(r.Context(), SearchQuery{
		Search: r.URL.Query().Get("search"),
		Page:   httpx.QueryInt(r, "page", 1),
		Limit:  httpx.QueryInt(r, "limit", 10),
	})
	if err != nil {
		httpx.WriteInternal(w, r, "Error searching books", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(r, "id")
	if !ok {
		httpx.WriteValidation(w, `"id" must be a positive integer`)
		return
	}

	book, err := h.service.GetBook(r.Context(), id)
	switch {
	case errors.Is(err, ErrBookNotFound):
		httpx.WriteMessage(w, http.StatusNotFound, "Book not found")
	case err != nil:
		httpx.WriteInternal(w, r, "Error getting book", err)
	default:
		httpx.WriteJSON(w, http.StatusOK, book)
	}
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(r, "id")
	if !ok {
		httpx.WriteValidation(w, `"id" must be a positive integer`)
		return
	}

	var req BookUpdate
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteValidation(w, err.Error())
		return
	}

	var details []string
	if req.Title == nil && req.Author == nil && req.ISBN == nil && req.Copies == nil {
		details = append(details, `"value" must have at least 1 key`)
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		details = append(details, `"title" is not allowed to be empty`)
	}
	if req.Author != nil && strings.TrimSpace(*req.Author) == "" {
		details = append(details, `"author" is not allowed to be empty`)
	}
	if req.ISBN != nil && strings.TrimSpace(*req.ISBN) == "" {
		details = append(details, `"isbn" is not allowed to be empty`)
	}
	if req.Copies != nil && *req.Copies < 1 {
		details = append(details, `"copies" must be greater than or equal to 1`)
	}
	if len(details) > 0 {
		httpx.WriteValidation(w, details...)
		return
	}

	book, err := h.service.UpdateBook(r.Context(), id, req)
	switch {
	case errors.Is(err, ErrBookNotFound):
		httpx.WriteMessage(w, http.StatusNotFound, "Book not found")
	case errors.Is(err, ErrISBNTaken):
		httpx.WriteMessage(w, http.StatusBadRequest, "ISBN already in use")
	case errors.Is(err, ErrCopiesOnLoan):
		httpx.WriteMessage(w, http.StatusBadRequest, "Copies cannot be less than the number of copies on loan")
	case err != nil:
		httpx.WriteInternal(w, r, "Error updating book", err)
	default:
		httpx.WriteJSON(w, http.StatusOK, book)
	}
}

func (h *Handler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(r, "id")
	if !ok {
		httpx.WriteValidation(w, `"id" must be a positive integer`)
		return
	}

	var req AvailabilityUpdate
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteValidation(w, err.Error())
		return
	}

	switch {
	case req.Operation == "" && req.AvailableCopies == nil:
		httpx.WriteMessage(w, http.StatusBadRequest, "Either operation (increment/decrement) or available_copies must be provided")
		return
	case req.Operation != "" && req.AvailableCopies != nil:
		httpx.WriteValidation(w, `"value" contains a conflict between exclusive peers [operation, available_copies]`)
		return
	case req.Operation != "" && !req.Operation.Valid():
		httpx.WriteValidation(w, `"operation" must be one of [increment, decrement]`)
		return
	case req.AvailableCopies != nil && *req.AvailableCopies < 0:
		httpx.WriteValidation(w, `"available_copies" must be greater than or equal to 0`)
		return
	}

	avail, err := h.service.UpdateAvailability(r.Context(), id, req)
	var limit *CopiesLimitError
	switch {
	case errors.Is(err, ErrBookNotFound):
		httpx.WriteMessage(w, http.StatusNotFound, "Book not found")
	case errors.Is(err, ErrNoCopies):
		httpx.WriteMessage(w, http.StatusBadRequest, "No available copies to decrement")
	case errors.Is(err, ErrAllAvailable):
		httpx.WriteMessage(w, http.StatusBadRequest, "All copies are already available")
	case errors.As(err, &limit):
		httpx.WriteMessage(w, http.StatusBadRequest, limit.Error())
	case err != nil:
		httpx.WriteInternal(w, r, "Error updating book availability", err)
	default:
		httpx.WriteJSON(w, http.StatusOK, avail)
	}
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(r, "id")
	if !ok {
		httpx.WriteValidation(w, `"id" must be a positive integer`)
		return
	}

	err := h.service.DeleteBook(r.Context(), id)
	switch {
	case errors.Is(err, ErrBookNotFound):
		httpx.WriteMessage(w, http.StatusNotFound, "Book not found")
	case errors.Is(err, ErrOutstandingLoans):
		httpx.WriteMessage(w, http.StatusBadRequest, "Cannot delete book with outstanding loans")
	case err != nil:
		httpx.WriteInternal(w, r, "Error deleting book", err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
