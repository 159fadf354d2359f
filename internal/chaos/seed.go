package chaos

import (
	"context"
	"fmt"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/books"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/clients"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/users"
)

const seedCopies = 5

// Seeder registers the reader and book a game day borrows with.
type Seeder struct {
	Users *clients.UserClient
	Books *clients.BookClient
}

// Seed creates a reader and a book tagged with run and points target at
// them. Each run gets its own rows so earlier game days leave nothing to
// trip over.
func (s Seeder) Seed(ctx context.Context, target LoanServiceTarget, run string) (LoanServiceTarget, error) {
	user, err := s.Users.CreateUser(ctx, users.NewUser{
		Name:  "Game Day " + run,
		Email: "gameday-" + run + "@example.com",
	})
	if err != nil {
		return target, fmt.Errorf("seed user: %w", err)
	}
	book, err := s.Books.CreateBook(ctx, books.NewBook{
		Title:  "Game Day " + run,
		Author: "Chaos Engine",
		ISBN:   "GD-" + run,
		Copies: seedCopies,
	})
	if err != nil {
		return target, fmt.Errorf("seed book: %w", err)
	}
	target.UserID = user.ID
	target.BookID = book.ID
	return target, nil
}
