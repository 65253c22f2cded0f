package oauthstate

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

const (
	sessionName = "oauth-state"
	// Состояние живет только между редиректом на провайдера и callback.
	maxAgeSeconds = 600
)

// Store хранит одноразовые CSRF-состояния OAuth в отдельной короткоживущей
// cookie-сессии. Ничего, кроме state, в ней не лежит.
type Store struct {
	sessions *sessions.CookieStore
}

func NewStore(secret []byte) *Store {
	s := sessions.NewCookieStore(secret)
	s.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAgeSeconds,
		HttpOnly: true,
		// Callback приходит top-level редиректом с сайта провайдера,
		// поэтому Strict здесь не работает.
		SameSite: http.SameSiteLaxMode,
	}
	return &Store{sessions: s}
}

// Issue генерирует новое состояние для потока (например "instagram" или
// "google") и сохраняет его в сессию.
func (s *Store) Issue(w http.ResponseWriter, r *http.Request, flow string) (string, error) {
	state := uuid.NewString()
	session, _ := s.sessions.Get(r, sessionName)
	session.Values[flow] = state
	if err := session.Save(r, w); err != nil {
		return "", err
	}
	return state, nil
}

// Consume возвращает сохраненное состояние и удаляет его независимо от того,
// совпадет оно с присланным или нет: state одноразовый в обе стороны.
func (s *Store) Consume(w http.ResponseWriter, r *http.Request, flow string) (string, bool) {
	session, _ := s.sessions.Get(r, sessionName)
	raw, ok := session.Values[flow]
	if ok {
		delete(session.Values, flow)
		if err := session.Save(r, w); err != nil {
			return "", false
		}
	}
	state, isString := raw.(string)
	return state, ok && isString && state != ""
}
