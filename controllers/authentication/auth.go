package authentication

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"social-poster-backend/config"
	"social-poster-backend/controllers/oauthstate"
	"social-poster-backend/models/users"
)

// Имя cookie с JWT приложения: нужен и API-клиентам (через заголовок), и
// браузерным OAuth-редиректам, у которых заголовка нет.
const AuthCookieName = "auth_token"

const tokenTTL = 24 * time.Hour

type Claims struct {
	Email  string `json:"email"`
	UserID uint   `json:"userId"`
	jwt.StandardClaims
}

type Handler struct {
	db     *gorm.DB
	cfg    *config.Config
	states *oauthstate.Store
}

func NewHandler(db *gorm.DB, cfg *config.Config, states *oauthstate.Store) *Handler {
	return &Handler{db: db, cfg: cfg, states: states}
}

type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register: регистрация по email и паролю
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var input credentials
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid input")
		return
	}
	if input.Email == "" || input.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	// Проверка на существование пользователя с таким email
	var existing users.User
	if err := h.db.Where("email = ?", input.Email).First(&existing).Error; err == nil {
		writeError(w, http.StatusConflict, "Email already registered")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error hashing password")
		return
	}

	user := users.User{
		Name:     input.Name,
		Email:    input.Email,
		Password: string(hashed),
		Provider: "local",
	}
	if err := h.db.Create(&user).Error; err != nil {
		log.Printf("Ошибка при создании пользователя: %v", err)
		writeError(w, http.StatusInternalServerError, "Error creating user")
		return
	}

	token, err := h.IssueToken(&user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error generating token")
		return
	}
	h.setAuthCookie(w, token)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"user":  user,
		"token": token,
	})
}

// Login: вход по паролю и выдача JWT
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var input credentials
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid input")
		return
	}

	var user users.User
	if err := h.db.Where("email = ? AND provider = ?", input.Email, "local").First(&user).Error; err != nil {
		writeError(w, http.StatusUnauthorized, "User not found")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid password")
		return
	}

	token, err := h.IssueToken(&user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error generating token")
		return
	}
	h.setAuthCookie(w, token)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// Profile: профиль текущего пользователя по токену
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, err := ValidateToken(r, []byte(h.cfg.JWTSecret))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	user, err := users.GetUserByID(h.db, claims.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "User not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// Logout: завершение сеанса
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logged out successfully"})
}

func (h *Handler) IssueToken(user *users.User) (string, error) {
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(tokenTTL).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.cfg.JWTSecret))
}

func (h *Handler) setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(tokenTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ValidateToken достает JWT из заголовка Authorization или из cookie и
// возвращает клеймы текущего пользователя.
func ValidateToken(r *http.Request, secret []byte) (*Claims, error) {
	tokenString := ""
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		tokenString = strings.TrimPrefix(authHeader, "Bearer ")
	} else if cookie, err := r.Cookie(AuthCookieName); err == nil {
		tokenString = cookie.Value
	}
	if tokenString == "" {
		return nil, errors.New("authorization required")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}
	return claims, nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
