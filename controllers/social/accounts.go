package social

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"social-poster-backend/models/connections"
	"social-poster-backend/services/instagram"
)

// HandleAccounts возвращает привязанные Instagram аккаунты текущего
// пользователя. Токены наружу не отдаются.
func (h *Handler) HandleAccounts(w http.ResponseWriter, r *http.Request) {
	claims, err := h.currentUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "User not authenticated. Please log in to the application first.")
		return
	}

	conns, err := h.store.ListByUserID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch connected Instagram accounts")
		return
	}
	writeJSON(w, http.StatusOK, conns)
}

// HandleTokenStatus сообщает состояние токена аккаунта: срок, истек ли и
// нужен ли refresh (порог — 7 дней).
func (h *Handler) HandleTokenStatus(w http.ResponseWriter, r *http.Request) {
	claims, err := h.currentUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	instagramUserID := r.URL.Query().Get("instagramUserId")
	if instagramUserID == "" {
		writeError(w, http.StatusBadRequest, "Instagram User ID is required")
		return
	}

	conn, err := h.loadOwnedConnection(w, r, claims.UserID, instagramUserID)
	if err != nil {
		return
	}

	now := time.Now()
	health := instagram.ClassifyToken(conn.TokenExpiresAt, now)

	var daysUntilExpiry *int
	if conn.TokenExpiresAt != nil {
		days := int(math.Ceil(conn.TokenExpiresAt.Sub(now).Hours() / 24))
		daysUntilExpiry = &days
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"instagramUserId":   conn.InstagramUserID,
		"instagramUsername": conn.InstagramUsername,
		"expiresAt":         conn.TokenExpiresAt,
		"isExpired":         health == instagram.TokenExpired,
		"daysUntilExpiry":   daysUntilExpiry,
		"needsRefresh":      health != instagram.TokenHealthy,
	})
}

// HandleRefreshToken — ручное продление токена по запросу владельца.
func (h *Handler) HandleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	claims, err := h.currentUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req struct {
		InstagramUserID string `json:"instagramUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InstagramUserID == "" {
		writeError(w, http.StatusBadRequest, "Instagram User ID is required")
		return
	}

	if _, err := h.loadOwnedConnection(w, r, claims.UserID, req.InstagramUserID); err != nil {
		return
	}

	refreshed, err := h.tokens.Refresh(r.Context(), req.InstagramUserID)
	if err != nil {
		if errors.Is(err, instagram.ErrTokenExpired) || errors.Is(err, instagram.ErrNotConnected) {
			writeInstagramError(w, err, "")
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "Instagram Business token refreshed successfully",
		"expiresAt": refreshed.ExpiresAt,
	})
}

// loadOwnedConnection загружает подключение и проверяет владельца; ошибки
// пишет в ответ сам, вызывающему достаточно выйти.
func (h *Handler) loadOwnedConnection(w http.ResponseWriter, r *http.Request, userID uint, instagramUserID string) (*connections.Connection, error) {
	conn, err := h.store.GetByInstagramUserID(r.Context(), instagramUserID)
	if errors.Is(err, connections.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Instagram connection not found")
		return nil, err
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error looking up Instagram connection")
		return nil, err
	}
	if conn.UserID != userID {
		writeError(w, http.StatusForbidden, "Unauthorized access to Instagram account")
		return nil, errors.New("foreign connection")
	}
	return conn, nil
}
