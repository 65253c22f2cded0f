package social

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"

	"social-poster-backend/models/connections"
)

type publishRequest struct {
	InstagramUserID string `json:"instagramUserId"`
	ImageURL        string `json:"imageUrl"`
	Caption         string `json:"caption"`
}

// HandlePublish публикует фото в два шага: контейнер, затем publish.
// Между шагами ретраев нет; если publish упал, creationId возвращается в
// ответе для ручной повторной публикации.
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	claims, err := h.currentUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "User not authenticated in the application. Please log in.")
		return
	}

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid input")
		return
	}
	if req.InstagramUserID == "" {
		writeError(w, http.StatusBadRequest, "Instagram User ID is required")
		return
	}
	if req.ImageURL == "" {
		writeError(w, http.StatusBadRequest, "Image URL is required.")
		return
	}

	// Валидация до любых сетевых вызовов и до работы с токеном.
	parsed, err := url.Parse(req.ImageURL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		writeError(w, http.StatusBadRequest, "Invalid image URL format.")
		return
	}

	conn, err := h.store.GetByInstagramUserID(r.Context(), req.InstagramUserID)
	if errors.Is(err, connections.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Instagram account not connected for this user.")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error looking up Instagram connection")
		return
	}
	if conn.UserID != claims.UserID {
		writeError(w, http.StatusForbidden, "Unauthorized access to Instagram account")
		return
	}

	accessToken, err := h.tokens.GetValidToken(r.Context(), req.InstagramUserID)
	if err != nil {
		writeInstagramError(w, err, "")
		return
	}

	creationID, err := h.client.CreateMediaContainer(r.Context(), req.InstagramUserID, req.ImageURL, req.Caption, accessToken)
	if err != nil {
		log.Printf("Error creating media container: %v", err)
		writeInstagramError(w, err, "")
		return
	}

	postID, err := h.client.PublishMediaContainer(r.Context(), req.InstagramUserID, creationID, accessToken)
	if err != nil {
		log.Printf("Error publishing media container %s: %v", creationID, err)
		writeInstagramError(w, err, creationID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Photo posted successfully!",
		"postId":  postID,
	})
}
