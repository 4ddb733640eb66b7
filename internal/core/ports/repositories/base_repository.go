package repositories

import (
	"context"
)

// UnitOfWork runs fn inside a single storage transaction. Repository calls made with the ctx
// handed to fn join that transaction; returning an error rolls everything back.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
