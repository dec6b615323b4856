package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const readingBatchSize = 1000

type Reading struct {
	ID        uint      `json:"-" gorm:"primaryKey"`
	DeviceId  string    `json:"device_id" gorm:"not null"`
	Device    *Device   `json:"-" gorm:"foreignKey:DeviceId;references:DeviceId"`
	Timestamp time.Time `json:"timestamp" gorm:"not null"`
	X         float64   `json:"x" gorm:"not null"`
	Y         float64   `json:"y" gorm:"not null"`
	Z         float64   `json:"z" gorm:"not null"`
}

func (r Reading) Axes() (float64, float64, float64) {
	return r.X, r.Y, r.Z
}

// TimeRange bounds a reading query. Both ends are inclusive and either may be nil.
type TimeRange struct {
	Start *time.Time
	End   *time.Time
}

func (tr TimeRange) apply(tx *gorm.DB) *gorm.DB {
	if tr.Start != nil {
		tx = tx.Where("timestamp >= ?", tr.Start.UTC())
	}
	if tr.End != nil {
		tx = tx.Where("timestamp <= ?", tr.End.UTC())
	}
	return tx
}

func (db *DB) InsertReading(ctx context.Context, reading *Reading) error {
	reading.Timestamp = reading.Timestamp.UTC()
	tx := db.WithContext(ctx).Create(reading)
	if tx.Error != nil {
		return fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return nil
}

// InsertReadings stores all readings in one transaction, chunked to stay under the bind parameter
// limits of the drivers.
func (db *DB) InsertReadings(ctx context.Context, readings []*Reading) error {
	if len(readings) == 0 {
		return nil
	}
	for _, r := range readings {
		r.Timestamp = r.Timestamp.UTC()
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resp := tx.CreateInBatches(readings, readingBatchSize)
		if resp.Error != nil {
			return fmt.Errorf("resp.Error: %w", resp.Error)
		}
		return nil
	})
}

func (db *DB) ReadingsForDevice(ctx context.Context, deviceID string, tr TimeRange) ([]*Reading, error) {
	var readings []*Reading
	tx := tr.apply(db.WithContext(ctx).Where("device_id = ?", deviceID)).Order("timestamp, id").Find(&readings)
	if tx.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return readings, nil
}

func (db *DB) ReadingsForDevices(ctx context.Context, deviceIDs []string, tr TimeRange) ([]*Reading, error) {
	if len(deviceIDs) == 0 {
		return []*Reading{}, nil
	}
	var readings []*Reading
	tx := tr.apply(db.WithContext(ctx).Where("device_id IN ?", deviceIDs)).Order("timestamp, id").Find(&readings)
	if tx.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return readings, nil
}

func (db *DB) CountReadings(ctx context.Context) (int64, error) {
	var numReadings int64
	tx := db.WithContext(ctx).Model(&Reading{}).Count(&numReadings)
	if tx.Error != nil {
		return 0, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return numReadings, nil
}

func (db *DB) Unsafe_DeleteAllReadings(ctx context.Context) error {
	tx := db.WithContext(ctx).Exec("DELETE FROM readings")
	if tx.Error != nil {
		return fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return nil
}
