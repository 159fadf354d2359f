// internal/clients/book_client.go
package clients

import (
	"context"
	"fmt"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/books"
)

type BookClient struct {
	svc *Service
}

func NewBookClient(svc *Service) *BookClient {
	return &BookClient{svc: svc}
}

func (c *BookClient) GetBook(ctx context.Context, id int64) (*books.Book, error) {
	resp, err := c.svc.Get(ctx, fmt.Sprintf("/books/%d", id))
	if err != nil {
		return nil, err
	}

	var book books.Book
	if err := resp.Decode(&book); err != nil {
		return nil, fmt.Errorf("decode book %d: %w", id, err)
	}
	return &book, nil
}

// CreateBook adds a book to the catalog. Used by game day seeding.
func (c *BookClient) CreateBook(ctx context.Context, in books.NewBook) (*books.Book, error) {
	resp, err := c.svc.Post(ctx, "/books", in)
	if err != nil {
		return nil, err
	}

	var book books.Book
	if err := resp.Decode(&book); err != nil {
		return nil, fmt.Errorf("decode created book: %w", err)
	}
	return &book, nil
}

// UpdateAvailability increments or decrements the book's available copies.
func (c *BookClient) UpdateAvailability(ctx context.Context, id int64, op books.Operation) (*books.Availability, error) {
	resp, err := c.svc.Patch(ctx, fmt.Sprintf("/books/%d/availability", id), books.AvailabilityUpdate{Operation: op})
	if err != nil {
		return nil, err
	}

	var avail books.Availability
	if err := resp.Decode(&avail); err != nil {
		return nil, fmt.Errorf("decode availability of book %d: %w", id, err)
	}
	return &avail, nil
}
