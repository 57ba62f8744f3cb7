package model

import (
	"time"
)

type User struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Email        *string   `gorm:"size:100;uniqueIndex" json:"email,omitempty"`
	Mobile       *string   `gorm:"size:20;uniqueIndex" json:"mobile,omitempty"`
	PasswordHash *string   `gorm:"size:255" json:"-"`
	Role         UserRole  `gorm:"size:20;not null;default:vendor" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
