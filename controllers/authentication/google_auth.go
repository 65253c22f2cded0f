package authentication

import (
	"errors"
	"log"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2v2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
	"gorm.io/gorm"

	"social-poster-backend/models/users"
)

const googleStateFlow = "google"

func (h *Handler) googleOAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.cfg.GoogleClientID,
		ClientSecret: h.cfg.GoogleClientSecret,
		RedirectURL:  h.cfg.GoogleRedirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

// HandleGoogleLogin начинает вход через Google OAuth.
func (h *Handler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := h.states.Issue(w, r, googleStateFlow)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error saving OAuth state")
		return
	}
	url := h.googleOAuthConfig().AuthCodeURL(state, oauth2.AccessTypeOffline)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// HandleGoogleCallback обрабатывает ответ Google: сверяет одноразовый state,
// меняет код на токен, подтягивает профиль и выдает JWT приложения.
func (h *Handler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")
	received := r.FormValue("state")
	if code == "" || received == "" {
		writeError(w, http.StatusBadRequest, "Invalid OAuth callback parameters")
		return
	}

	stored, ok := h.states.Consume(w, r, googleStateFlow)
	if !ok || received != stored {
		log.Println("Invalid Google OAuth state")
		writeError(w, http.StatusForbidden, "Invalid OAuth state. CSRF detected")
		return
	}

	ctx := r.Context()
	token, err := h.googleOAuthConfig().Exchange(ctx, code)
	if err != nil {
		log.Printf("Error while exchanging code for token: %v", err)
		writeError(w, http.StatusBadGateway, "Failed to exchange authorization code")
		return
	}

	svc, err := oauth2v2.NewService(ctx,
		option.WithTokenSource(h.googleOAuthConfig().TokenSource(ctx, token)))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error creating Google API client")
		return
	}
	info, err := svc.Userinfo.Get().Do()
	if err != nil {
		log.Printf("Error while fetching user info: %v", err)
		writeError(w, http.StatusBadGateway, "Failed to fetch Google profile")
		return
	}
	if info.Id == "" || info.Email == "" {
		writeError(w, http.StatusBadGateway, "Google profile response is incomplete")
		return
	}

	// Проверка, существует ли пользователь с таким email
	var user users.User
	if err := h.db.Where("email = ?", info.Email).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusInternalServerError, "Error looking up user")
			return
		}
		user = users.User{
			Email:    info.Email,
			Name:     info.GivenName + " " + info.FamilyName,
			Provider: "google",
		}
		if err := h.db.Create(&user).Error; err != nil {
			log.Printf("Ошибка при создании пользователя: %v", err)
			writeError(w, http.StatusInternalServerError, "Error creating user")
			return
		}
	}

	// Запись или обновление GoogleUser с текущими токенами
	var googleUser users.GoogleUser
	if err := h.db.Where("google_id = ?", info.Id).First(&googleUser).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusInternalServerError, "Error looking up Google account")
			return
		}
		googleUser = users.GoogleUser{
			UserID:       user.ID,
			GoogleID:     info.Id,
			Email:        info.Email,
			FirstName:    info.GivenName,
			LastName:     info.FamilyName,
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			Expiry:       token.Expiry,
		}
		if err := h.db.Create(&googleUser).Error; err != nil {
			log.Printf("Ошибка при создании GoogleUser: %v", err)
			writeError(w, http.StatusInternalServerError, "Error creating Google account")
			return
		}
	} else {
		googleUser.Email = info.Email
		googleUser.FirstName = info.GivenName
		googleUser.LastName = info.FamilyName
		googleUser.AccessToken = token.AccessToken
		if token.RefreshToken != "" {
			googleUser.RefreshToken = token.RefreshToken
		}
		googleUser.Expiry = token.Expiry
		if err := h.db.Save(&googleUser).Error; err != nil {
			log.Printf("Ошибка при обновлении GoogleUser: %v", err)
			writeError(w, http.StatusInternalServerError, "Error updating Google account")
			return
		}
	}

	appToken, err := h.IssueToken(&user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error generating token")
		return
	}
	h.setAuthCookie(w, appToken)

	http.Redirect(w, r, h.cfg.AppURL+"/dashboard", http.StatusTemporaryRedirect)
}
