package instagram

import (
	"context"
	"errors"
	"log"
	"time"

	"social-poster-backend/models/connections"
)

// RefreshWindow — за сколько до истечения токен считается "скоро истекающим"
// и продлевается лениво при чтении. Отдельного планировщика нет.
const RefreshWindow = 7 * 24 * time.Hour

type TokenHealth int

const (
	TokenHealthy TokenHealth = iota
	TokenExpiringSoon
	TokenExpired
)

// ClassifyToken оценивает состояние токена относительно "сейчас".
// Отсутствие срока действия трактуется как здоровый токен.
func ClassifyToken(expiresAt *time.Time, now time.Time) TokenHealth {
	if expiresAt == nil {
		return TokenHealthy
	}
	if !expiresAt.After(now) {
		return TokenExpired
	}
	if !expiresAt.After(now.Add(RefreshWindow)) {
		return TokenExpiringSoon
	}
	return TokenHealthy
}

// ConnectionStore — срез хранилища, который нужен менеджеру токенов.
type ConnectionStore interface {
	GetByInstagramUserID(ctx context.Context, instagramUserID string) (*connections.Connection, error)
	UpdateToken(ctx context.Context, instagramUserID, accessToken string, expiresAt time.Time) error
}

// TokenManager выдает рабочий токен по id аккаунта, при необходимости
// продлевая его перед использованием.
type TokenManager struct {
	store  ConnectionStore
	client *Client
	now    func() time.Time
}

func NewTokenManager(store ConnectionStore, client *Client) *TokenManager {
	return &TokenManager{store: store, client: client, now: time.Now}
}

// GetValidToken возвращает токен для вызова API.
// Истекший токен — сразу ErrTokenExpired без сетевого вызова: провайдер не
// продлевает истекшие токены. Скоро истекающий продлевается; неудачный refresh
// не блокирует вызывающего — возвращается еще действующий текущий токен.
func (m *TokenManager) GetValidToken(ctx context.Context, instagramUserID string) (string, error) {
	conn, err := m.store.GetByInstagramUserID(ctx, instagramUserID)
	if errors.Is(err, connections.ErrNotFound) {
		return "", ErrNotConnected
	}
	if err != nil {
		return "", err
	}

	switch ClassifyToken(conn.TokenExpiresAt, m.now()) {
	case TokenExpired:
		return "", ErrTokenExpired
	case TokenExpiringSoon:
		refreshed, err := m.Refresh(ctx, instagramUserID)
		if err != nil {
			log.Printf("Не удалось продлить токен Instagram для %s, используем текущий: %v", instagramUserID, err)
			return conn.AccessToken, nil
		}
		return refreshed.AccessToken, nil
	}
	return conn.AccessToken, nil
}

// Refresh продлевает токен аккаунта и атомарно записывает результат.
// При ошибке провайдера состояние в базе не меняется.
func (m *TokenManager) Refresh(ctx context.Context, instagramUserID string) (*RefreshedToken, error) {
	conn, err := m.store.GetByInstagramUserID(ctx, instagramUserID)
	if errors.Is(err, connections.ErrNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, err
	}

	if ClassifyToken(conn.TokenExpiresAt, m.now()) == TokenExpired {
		return nil, ErrTokenExpired
	}

	refreshed, err := m.client.RefreshAccessToken(ctx, conn.AccessToken)
	if err != nil {
		return nil, err
	}

	if err := m.store.UpdateToken(ctx, instagramUserID, refreshed.AccessToken, refreshed.ExpiresAt); err != nil {
		return nil, err
	}

	log.Printf("Токен Instagram для %s продлен до %s", instagramUserID, refreshed.ExpiresAt.Format(time.RFC3339))
	return refreshed, nil
}
