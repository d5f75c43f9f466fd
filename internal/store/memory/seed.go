package memory

import (
	"context"
	"log/slog"

	"apotekin/backend/internal/store/seed"
)

// NewSeeded returns a store holding the demo catalog and the default
// operator accounts.
func NewSeeded() *Store {
	s := New()
	if err := seed.Load(context.Background(), s, slog.Default()); err != nil {
		panic("memory store: " + err.Error())
	}
	return s
}
