// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Measurement
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a measurement is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - When an insert collides with the (customer_code, measure_type,
//     measure_period) unique index, CreateMeasurement returns
//     ErrDuplicatePeriod. Concurrent submissions for the same month therefore
//     cannot both succeed, regardless of any preceding existence check.
//   - On other DB errors (connectivity, missing schema, ...), the raw gorm
//     error is propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-meter-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across the service layer
// and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicatePeriod indicates a measurement already exists for the same
// (customer_code, measure_type, calendar month) triple.
var ErrDuplicatePeriod = errors.New("measurement already exists for period")

// CreateMeasurement inserts a new Measurement row with a freshly generated
// UUID and the period key derived by the caller. On a unique-index collision
// for the period it returns ErrDuplicatePeriod.
func CreateMeasurement(ctx context.Context, db *gorm.DB, m *domain.Measurement) (*domain.Measurement, error) {
	if m.MeasureUUID == "" {
		m.MeasureUUID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicatePeriod
		}
		return nil, err
	}
	return m, nil
}

// PeriodExists reports whether a measurement is already recorded for the
// given customer, type, and YYYY-MM period. This is a fast pre-check only;
// the unique index remains the authority under concurrency.
func PeriodExists(ctx context.Context, db *gorm.DB, customerCode, measureType, period string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Measurement{}).
		Where("customer_code = ? AND measure_type = ? AND measure_period = ?", customerCode, measureType, period).
		Count(&n).Error
	return n > 0, err
}

// GetByUUID fetches a single measurement by its external UUID. If the record
// does not exist, it returns ErrNotFound.
func GetByUUID(ctx context.Context, db *gorm.DB, measureUUID string) (*domain.Measurement, error) {
	var m domain.Measurement
	err := db.WithContext(ctx).
		Where("measure_uuid = ?", measureUUID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListByCustomer returns all measurements for a customer in insertion order,
// optionally filtered by measure type (pass "" for no type filter). An empty
// slice is a valid result; the caller decides whether that is an error.
func ListByCustomer(ctx context.Context, db *gorm.DB, customerCode, measureType string) ([]domain.Measurement, error) {
	q := db.WithContext(ctx).
		Where("customer_code = ?", customerCode).
		Order("id asc")
	if measureType != "" {
		q = q.Where("measure_type = ?", measureType)
	}
	var out []domain.Measurement
	err := q.Find(&out).Error
	return out, err
}

// ConfirmValue marks a still-open measurement as confirmed, leaving the value
// untouched. The update is guarded by has_confirmed = false so a concurrent
// confirmation cannot apply twice; it returns the number of rows affected.
func ConfirmValue(ctx context.Context, db *gorm.DB, measureUUID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Measurement{}).
		Where("measure_uuid = ? AND has_confirmed = ?", measureUUID, false).
		Update("has_confirmed", true)
	return res.RowsAffected, res.Error
}

// CorrectValue overwrites the reading of a still-open measurement with the
// human-supplied value, leaving has_confirmed false. Guarded the same way as
// ConfirmValue; returns the number of rows affected.
func CorrectValue(ctx context.Context, db *gorm.DB, measureUUID string, value int64) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Measurement{}).
		Where("measure_uuid = ? AND has_confirmed = ?", measureUUID, false).
		Update("measure_value", value)
	return res.RowsAffected, res.Error
}

// isUniqueViolation detects unique-constraint violations across drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
