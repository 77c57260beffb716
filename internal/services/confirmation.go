// Package services – confirmation
//
// This file implements the confirmation state machine for a measurement:
// PENDING → CONFIRMED when the human agrees with the automated value, or
// PENDING → PENDING with the value replaced when they disagree. Agreement is
// terminal; disagreement only corrects and leaves the record open for a later
// confirmation pass. A correction is not a second reading.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-meter-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Confirm applies a human confirmation value to the measurement identified by
// measureUUID.
//
// Semantics:
//   - blank measureUUID → *InvalidDataError
//   - unknown measureUUID → ErrMeasureNotFound
//   - already confirmed → ErrConfirmationDuplicate
//   - confirmedValue == stored value → has_confirmed set true, value untouched
//   - confirmedValue != stored value → value overwritten, has_confirmed stays
//     false
//
// Concurrency & atomicity:
//   - The read and the effect run inside one transaction, and every effect is
//     a guarded UPDATE (has_confirmed = false in the WHERE clause). If a
//     concurrent confirmation wins between the read and the write, zero rows
//     are affected and the loser observes ErrConfirmationDuplicate instead of
//     silently overwriting a confirmed record.
func (s *MeasurementService) Confirm(ctx context.Context, measureUUID string, confirmedValue int64) error {
	tr := otel.Tracer("services/MeasurementService")
	ctx, span := tr.Start(ctx, "Confirm",
		trace.WithAttributes(
			attribute.String("measure.uuid", measureUUID),
		),
	)
	defer span.End()

	if strings.TrimSpace(measureUUID) == "" {
		return invalidData("measure_uuid", "must be a non-empty string")
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.GetByUUID(ctx, tx, measureUUID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrMeasureNotFound
			}
			return err
		}

		if m.HasConfirmed {
			return ErrConfirmationDuplicate
		}

		var rows int64
		if confirmedValue == m.MeasureValue {
			rows, err = repo.ConfirmValue(ctx, tx, measureUUID)
		} else {
			rows, err = repo.CorrectValue(ctx, tx, measureUUID, confirmedValue)
		}
		if err != nil {
			return err
		}
		if rows == 0 {
			// A concurrent confirmation landed after our read.
			return ErrConfirmationDuplicate
		}
		return nil
	})
}
