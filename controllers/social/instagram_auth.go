package social

import (
	"log"
	"net/http"

	"social-poster-backend/models/connections"
)

const instagramStateFlow = "instagram"

// HandleInstagramLogin отправляет авторизованного пользователя приложения на
// экран согласия Instagram Business Login.
func (h *Handler) HandleInstagramLogin(w http.ResponseWriter, r *http.Request) {
	if _, err := h.currentUser(r); err != nil {
		writeError(w, http.StatusUnauthorized, "User not authenticated. Please log in to the application first.")
		return
	}

	state, err := h.states.Issue(w, r, instagramStateFlow)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error saving OAuth state")
		return
	}

	http.Redirect(w, r, h.client.AuthorizeURL(state), http.StatusTemporaryRedirect)
}

// HandleInstagramCallback завершает привязку: сверяет одноразовый state,
// прогоняет трехшаговый обмен и одним upsert записывает подключение.
// Ничего не сохраняется, пока все три шага не пройдут успешно.
func (h *Handler) HandleInstagramCallback(w http.ResponseWriter, r *http.Request) {
	claims, err := h.currentUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "User not authenticated. Please log in to the application first.")
		return
	}

	code := r.URL.Query().Get("code")
	received := r.URL.Query().Get("state")
	if code == "" || received == "" {
		writeError(w, http.StatusBadRequest, "Invalid OAuth callback parameters.")
		return
	}

	// Состояние одноразовое: Consume чистит его и при совпадении, и при
	// промахе, так что повтор того же callback отвергается так же.
	stored, ok := h.states.Consume(w, r, instagramStateFlow)
	if !ok || received != stored {
		log.Printf("Invalid Instagram OAuth state for user %d", claims.UserID)
		writeError(w, http.StatusForbidden, "Invalid OAuth state. CSRF detected.")
		return
	}

	account, err := h.client.ExchangeCodeForLongLivedToken(r.Context(), code)
	if err != nil {
		log.Printf("Instagram token exchange failed: %v", err)
		writeInstagramError(w, err, "")
		return
	}

	expiresAt := account.ExpiresAt
	conn := &connections.Connection{
		UserID:            claims.UserID,
		InstagramUserID:   account.InstagramUserID,
		InstagramUsername: account.Username,
		AccessToken:       account.AccessToken,
		TokenExpiresAt:    &expiresAt,
	}
	if err := h.store.Upsert(r.Context(), conn); err != nil {
		log.Printf("Ошибка при сохранении подключения Instagram: %v", err)
		writeError(w, http.StatusInternalServerError, "Error saving Instagram connection")
		return
	}

	log.Printf("Instagram аккаунт %s (%s) привязан к пользователю %d",
		account.Username, account.InstagramUserID, claims.UserID)

	http.Redirect(w, r, h.cfg.AppURL+"/dashboard?instagram_linked=true", http.StatusTemporaryRedirect)
}
