package social

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"social-poster-backend/config"
	"social-poster-backend/controllers/authentication"
	"social-poster-backend/controllers/oauthstate"
	"social-poster-backend/models/connections"
	"social-poster-backend/services/instagram"
)

// ConnectionStore — операции хранилища, которые нужны хендлерам.
type ConnectionStore interface {
	Upsert(ctx context.Context, conn *connections.Connection) error
	GetByInstagramUserID(ctx context.Context, instagramUserID string) (*connections.Connection, error)
	ListByUserID(ctx context.Context, userID uint) ([]connections.Connection, error)
}

// Handler обслуживает привязку Instagram аккаунтов, публикацию и webhook.
type Handler struct {
	cfg    *config.Config
	store  ConnectionStore
	client *instagram.Client
	tokens *instagram.TokenManager
	states *oauthstate.Store
}

func NewHandler(cfg *config.Config, store ConnectionStore, client *instagram.Client, tokens *instagram.TokenManager, states *oauthstate.Store) *Handler {
	return &Handler{cfg: cfg, store: store, client: client, tokens: tokens, states: states}
}

func (h *Handler) currentUser(r *http.Request) (*authentication.Claims, error) {
	return authentication.ValidateToken(r, []byte(h.cfg.JWTSecret))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeInstagramError переводит ошибки токенов и провайдера в статусы API.
// Истекший токен отдается как 401 с подсказкой про переавторизацию — чтобы
// фронтенд вел пользователя на повторную привязку, а не на повтор запроса.
func writeInstagramError(w http.ResponseWriter, err error, creationID string) {
	payload := map[string]interface{}{}
	if creationID != "" {
		payload["creationId"] = creationID
	}

	switch {
	case errors.Is(err, instagram.ErrTokenExpired):
		payload["error"] = instagram.ErrTokenExpired.Error()
		payload["needsReauth"] = true
		writeJSON(w, http.StatusUnauthorized, payload)
		return
	case errors.Is(err, instagram.ErrNotConnected):
		payload["error"] = instagram.ErrNotConnected.Error()
		writeJSON(w, http.StatusNotFound, payload)
		return
	}

	var apiErr *instagram.APIError
	if errors.As(err, &apiErr) {
		if apiErr.TokenInvalid() {
			payload["error"] = instagram.ErrTokenExpired.Error()
			payload["needsReauth"] = true
			writeJSON(w, http.StatusUnauthorized, payload)
			return
		}
		status := apiErr.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		payload["error"] = apiErr.Message
		writeJSON(w, status, payload)
		return
	}

	var protoErr *instagram.ProtocolError
	if errors.As(err, &protoErr) {
		payload["error"] = protoErr.Error()
		writeJSON(w, http.StatusBadGateway, payload)
		return
	}

	payload["error"] = err.Error()
	writeJSON(w, http.StatusInternalServerError, payload)
}
