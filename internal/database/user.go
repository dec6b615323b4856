package database

import (
	"context"
	"fmt"
	"time"
)

type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username" gorm:"not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
}

func (db *DB) CreateUser(ctx context.Context, user *User) error {
	tx := db.WithContext(ctx).Create(user)
	if tx.Error != nil {
		return fmt.Errorf("tx.Error: %w", translateCreateError(tx.Error))
	}

	return nil
}

func (db *DB) UserByUsername(ctx context.Context, username string) (Lookup[*User], error) {
	var users []*User
	tx := db.WithContext(ctx).Where("username = ?", username).Limit(1).Find(&users)
	if tx.Error != nil {
		return NotFound[*User](), fmt.Errorf("tx.Error: %w", tx.Error)
	}
	if len(users) == 0 {
		return NotFound[*User](), nil
	}

	return Found(users[0]), nil
}

func (db *DB) CountAllUsers(ctx context.Context) (int64, error) {
	var numUsers int64
	tx := db.WithContext(ctx).Model(&User{}).Count(&numUsers)
	if tx.Error != nil {
		return 0, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return numUsers, nil
}
