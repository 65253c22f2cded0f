package connections

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"social-poster-backend/models/users"
)

// Connection — связь пользователя приложения с Instagram Business аккаунтом.
// На один instagram_user_id существует ровно одна строка: повторная привязка
// другим пользователем переписывает владельца, а не создает дубликат.
type Connection struct {
	ID                string     `json:"id" gorm:"primaryKey;type:uuid"`
	UserID            uint       `json:"-" gorm:"not null;index"`
	User              users.User `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	InstagramUserID   string     `json:"instagramUserId" gorm:"uniqueIndex;not null;size:255"`
	InstagramUsername string     `json:"instagramUsername" gorm:"not null;size:255"`
	AccessToken       string     `json:"-" gorm:"not null;size:512"`
	TokenExpiresAt    *time.Time `json:"tokenExpiresAt"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func (c *Connection) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
