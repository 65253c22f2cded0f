package users

import (
	"time"

	"gorm.io/gorm"
)

type GoogleUser struct {
	ID           uint   `gorm:"primaryKey"`
	UserID       uint   // Foreign Key к User
	User         User   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"` // Связь с таблицей User
	GoogleID     string `gorm:"uniqueIndex"`
	Email        string `gorm:"not null"`
	FirstName    string
	LastName     string
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
	Expiry       time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}
