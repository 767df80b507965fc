package service

import (
	"context"
	"errors"
	"time"

	"blendcloud/internal/apierror"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// runTx executes fn inside a GORM transaction bound to ctx. The tenant filter
// reads the tenant from the same context, so fn must only use tx.
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(fn)
}

// notFoundOr maps a missing row to a NOT_FOUND with msg and anything else to
// INTERNAL. Errors that already carry a code pass through untouched.
func notFoundOr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apierror.NotFound(msg)
	}
	return internal(err)
}

// internal keeps coded errors (tenant filter rejections, domain errors) and
// wraps everything else as INTERNAL.
func internal(err error) error {
	var coded *apierror.Error
	if errors.As(err, &coded) {
		return err
	}
	return apierror.Internal(err)
}

func logError(ctx context.Context, err error, msg string) {
	if apierror.CodeOf(err) != apierror.CodeInternal {
		return
	}
	zerolog.Ctx(ctx).Error().Err(err).Msg(msg)
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
