package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tbourn/go-meter-backend/internal/domain"
)

func TestOpenSQLite_CreatesAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meter.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	// Schema is usable end to end.
	m := seedMeasurement(t, db, "C-db", "WATER", "2024-07", 42)
	got, err := GetByUUID(context.Background(), db, m.MeasureUUID)
	if err != nil || got.MeasureValue != 42 {
		t.Fatalf("roundtrip = (%+v, %v)", got, err)
	}

	var mode string
	if err := db.Raw("PRAGMA journal_mode;").Scan(&mode).Error; err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("journal_mode = %q, want wal", mode)
	}

	// The period index is live: a second insert for the same triple collides.
	_, err = CreateMeasurement(context.Background(), db, &domain.Measurement{
		CustomerCode:    "C-db",
		MeasureType:     "WATER",
		MeasurePeriod:   "2024-07",
		MeasureDatetime: "2024-07-20T00:00:00Z",
		MeasureValue:    43,
		ImageURL:        "https://files.example/x",
	})
	if err != ErrDuplicatePeriod {
		t.Fatalf("expected ErrDuplicatePeriod, got %v", err)
	}
}

func TestOpenSQLite_MissingParentDir(t *testing.T) {
	if _, err := OpenSQLite(filepath.Join(t.TempDir(), "no", "such", "dir", "m.db")); err == nil {
		t.Fatalf("expected error for missing parent directory")
	}
}
