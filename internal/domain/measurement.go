// Package domain defines the persistence model for utility-meter readings.
// The Measurement type is mapped with GORM and forms the core data layer of
// the meter-reading application.
package domain

import (
	"strings"
	"time"
)

// Allowed measurement types. Input is case-insensitive; values are stored
// normalized to uppercase.
const (
	MeasureTypeWater = "WATER"
	MeasureTypeGas   = "GAS"
)

// NormalizeMeasureType upper-cases and trims a measure type string.
func NormalizeMeasureType(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidMeasureType reports whether s (after normalization) is WATER or GAS.
func ValidMeasureType(s string) bool {
	switch NormalizeMeasureType(s) {
	case MeasureTypeWater, MeasureTypeGas:
		return true
	}
	return false
}

// PeriodOf derives the calendar year-month key ("2024-03") from an
// ISO-8601-like datetime string. The second return value is false when the
// string is too short to contain a YYYY-MM prefix.
func PeriodOf(measureDatetime string) (string, bool) {
	if len(measureDatetime) < 7 {
		return "", false
	}
	p := measureDatetime[:7]
	for i, r := range p {
		if i == 4 {
			if r != '-' {
				return "", false
			}
			continue
		}
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return p, true
}

// Measurement is a single automated meter reading awaiting (or past) human
// confirmation. One row may exist per (customer_code, measure_type, calendar
// month); the composite unique index ux_measurements_period enforces that
// invariant at the storage level so concurrent submissions cannot both land.
//
// Fields:
//   - ID: storage-assigned numeric key, not externally meaningful.
//   - MeasureUUID: externally-facing identifier, generated once at creation.
//   - CustomerCode: billing account identifier; opaque to this system.
//   - MeasureType: WATER or GAS (enforced by DB constraint).
//   - MeasurePeriod: YYYY-MM derived from MeasureDatetime at creation.
//   - MeasureDatetime: caller-supplied reading timestamp, kept verbatim.
//   - MeasureValue: integer reading; rewritable once via the correction path.
//   - ImageURL: URI of the stored source image; immutable once set.
//   - HasConfirmed: false until a human confirms the value unchanged.
type Measurement struct {
	ID              uint      `json:"-"                gorm:"primaryKey;autoIncrement"`
	MeasureUUID     string    `json:"measure_uuid"     gorm:"type:char(36);not null;uniqueIndex:ux_measurements_uuid"`
	CustomerCode    string    `json:"customer_code"    gorm:"type:varchar(64);not null;uniqueIndex:ux_measurements_period,priority:1"`
	MeasureType     string    `json:"measure_type"     gorm:"type:varchar(16);not null;uniqueIndex:ux_measurements_period,priority:2;check:measure_type IN ('WATER','GAS')"`
	MeasurePeriod   string    `json:"-"                gorm:"type:char(7);not null;uniqueIndex:ux_measurements_period,priority:3"`
	MeasureDatetime string    `json:"measure_datetime" gorm:"type:varchar(64);not null"`
	MeasureValue    int64     `json:"measure_value"    gorm:"not null"`
	ImageURL        string    `json:"image_url"        gorm:"type:text;not null"`
	HasConfirmed    bool      `json:"has_confirmed"    gorm:"not null;default:false"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for Measurement.
func (Measurement) TableName() string { return "measurements" }
