package connections

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("instagram connection not found")

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Upsert записывает связь по уникальному instagram_user_id: INSERT при первой
// привязке, UPDATE владельца, имени и токена при повторной.
func (s *Store) Upsert(ctx context.Context, conn *Connection) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "instagram_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"instagram_username",
			"access_token",
			"token_expires_at",
			"updated_at",
		}),
	}).Create(conn).Error
}

func (s *Store) GetByInstagramUserID(ctx context.Context, instagramUserID string) (*Connection, error) {
	var conn Connection
	err := s.db.WithContext(ctx).Where("instagram_user_id = ?", instagramUserID).First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (s *Store) ListByUserID(ctx context.Context, userID uint) ([]Connection, error) {
	var conns []Connection
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at").
		Find(&conns).Error
	if err != nil {
		return nil, err
	}
	return conns, nil
}

// UpdateToken перезаписывает токен и срок действия одной строкой,
// updated_at выставляет gorm.
func (s *Store) UpdateToken(ctx context.Context, instagramUserID, accessToken string, expiresAt time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&Connection{}).
		Where("instagram_user_id = ?", instagramUserID).
		Updates(map[string]interface{}{
			"access_token":     accessToken,
			"token_expires_at": expiresAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
