// internal/books/domain.go
package books

import (
	"time"
)

// Book is a title held by the library. AvailableCopies never leaves
// [0, Copies].
type Book struct {
	ID              int64     `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	Author          string    `json:"author" db:"author"`
	ISBN            string    `json:"isbn" db:"isbn"`
	Copies          int       `json:"copies" db:"copies"`
	AvailableCopies int       `json:"available_copies" db:"available_copies"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Operation adjusts available copies by one.
type Operation string

const (
	OperationIncrement Operation = "increment"
	OperationDecrement Operation = "decrement"
)

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	return o == OperationIncrement || o == OperationDecrement
}

// NewBook is the input to AddBook.
type NewBook struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	ISBN   string `json:"isbn"`
	Copies int    `json:"copies"`
}

// BookUpdate carries the fields to change; nil fields are left alone.
type BookUpdate struct {
	Title  *string `json:"title,omitempty"`
	Author *string `json:"author,omitempty"`
	ISBN   *string `json:"isbn,omitempty"`
	Copies *int    `json:"copies,omitempty"`
}

// AvailabilityUpdate sets either an Operation or an absolute count.
type AvailabilityUpdate struct {
	Operation       Operation `json:"operation,omitempty"`
	AvailableCopies *int      `json:"available_copies,omitempty"`
}

// Availability is the reply to an availability update.
type Availability struct {
	ID              int64     `json:"id" db:"id"`
	AvailableCopies int       `json:"available_copies" db:"available_copies"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// SearchQuery filters GET /books.
type SearchQuery struct {
	Search string
	Page   int
	Limit  int
}

// Page is one page of search results.
type Page struct {
	Books   []Book `json:"books"`
	Total   int64  `json:"total"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
}
