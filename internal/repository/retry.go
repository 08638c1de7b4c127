package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

// ConflictRetries is how many times RetryOnConflict runs a unit that keeps
// failing with domain.ErrConflict.
const ConflictRetries = 3

// RetryOnConflict runs fn as a unit of store and reruns the whole unit when it
// fails with domain.ErrConflict.
func RetryOnConflict(ctx context.Context, store Store, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 0; attempt < ConflictRetries; attempt++ {
		err = store.InTx(ctx, fn)
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}
