package database

import (
	"context"
	"fmt"
	"time"
)

type Device struct {
	ID               uint      `json:"-" gorm:"primaryKey"`
	DeviceId         string    `json:"device_id" gorm:"not null;uniqueIndex"`
	OwnerID          uint      `json:"-" gorm:"not null"`
	Owner            *User     `json:"-" gorm:"foreignKey:OwnerID"`
	RegistrationDate time.Time `json:"registration_date"`
}

// DeviceUsage is one row of the per-device overview served on the internal endpoints.
type DeviceUsage struct {
	DeviceId         string
	Username         string
	RegistrationDate time.Time
	NumReadings      int64
}

func (db *DB) CountAllDevices(ctx context.Context) (int64, error) {
	var numDevices int64 = 0
	tx := db.WithContext(ctx).Model(&Device{}).Count(&numDevices)
	if tx.Error != nil {
		return 0, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return numDevices, nil
}

func (db *DB) CreateDevice(ctx context.Context, device *Device) error {
	tx := db.WithContext(ctx).Create(device)
	if tx.Error != nil {
		return fmt.Errorf("tx.Error: %w", translateCreateError(tx.Error))
	}

	return nil
}

func (db *DB) DeviceByID(ctx context.Context, deviceID string) (Lookup[*Device], error) {
	var devices []*Device
	tx := db.WithContext(ctx).Where("device_id = ?", deviceID).Limit(1).Find(&devices)
	if tx.Error != nil {
		return NotFound[*Device](), fmt.Errorf("tx.Error: %w", tx.Error)
	}
	if len(devices) == 0 {
		return NotFound[*Device](), nil
	}

	return Found(devices[0]), nil
}

// DevicesForOwner returns the user's devices in registration order.
func (db *DB) DevicesForOwner(ctx context.Context, ownerID uint) ([]*Device, error) {
	var devices []*Device
	tx := db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("id").Find(&devices)
	if tx.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return devices, nil
}

func (db *DB) DeviceUsage(ctx context.Context) ([]DeviceUsage, error) {
	var usage []DeviceUsage
	tx := db.WithContext(ctx).Raw(`
	SELECT
		devices.device_id AS device_id,
		users.username AS username,
		devices.registration_date AS registration_date,
		COUNT(readings.id) AS num_readings
	FROM devices
	JOIN users ON users.id = devices.owner_id
	LEFT JOIN readings ON readings.device_id = devices.device_id
	GROUP BY devices.id, devices.device_id, users.username, devices.registration_date
	ORDER BY devices.id`).Scan(&usage)
	if tx.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return usage, nil
}
