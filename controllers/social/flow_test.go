package social

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-poster-backend/controllers/oauthstate"
	"social-poster-backend/models/connections"
	"social-poster-backend/services/instagram"
)

// memStore держит подключения в памяти; реализует и срез хендлеров,
// и срез менеджера токенов.
type memStore struct {
	conns map[string]*connections.Connection
}

func newMemStore() *memStore {
	return &memStore{conns: map[string]*connections.Connection{}}
}

func (s *memStore) Upsert(_ context.Context, conn *connections.Connection) error {
	copied := *conn
	s.conns[conn.InstagramUserID] = &copied
	return nil
}

func (s *memStore) GetByInstagramUserID(_ context.Context, instagramUserID string) (*connections.Connection, error) {
	conn, ok := s.conns[instagramUserID]
	if !ok {
		return nil, connections.ErrNotFound
	}
	copied := *conn
	return &copied, nil
}

func (s *memStore) ListByUserID(_ context.Context, userID uint) ([]connections.Connection, error) {
	var out []connections.Connection
	for _, conn := range s.conns {
		if conn.UserID == userID {
			out = append(out, *conn)
		}
	}
	return out, nil
}

func (s *memStore) UpdateToken(_ context.Context, instagramUserID, accessToken string, expiresAt time.Time) error {
	conn, ok := s.conns[instagramUserID]
	if !ok {
		return connections.ErrNotFound
	}
	conn.AccessToken = accessToken
	conn.TokenExpiresAt = &expiresAt
	return nil
}

func flowHandler(t *testing.T, store *memStore, providerURL string) (*Handler, *oauthstate.Store) {
	t.Helper()
	cfg := testConfig()
	cfg.InstagramClientID = "test-client-id"
	cfg.InstagramClientSecret = "test-client-secret"
	cfg.InstagramRedirectURI = "https://app.example.com/auth/instagram/callback"
	cfg.HTTPTimeout = 5 * time.Second

	client := instagram.NewClient(cfg)
	client.APIBase = providerURL
	client.GraphBase = providerURL

	states := oauthstate.NewStore([]byte(cfg.SessionSecret))
	tokens := instagram.NewTokenManager(store, client)
	return NewHandler(cfg, store, client, tokens, states), states
}

// Полный happy path привязки: обмен кода, получение долгоживущего токена,
// канонический id из /me, один upsert и редирект на дашборд.
func TestHandleInstagramCallback_LinksAccount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "auth-code-1", r.PostForm.Get("code"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"access_token": "short-lived-token", "user_id": "90010"},
			},
		})
	})
	mux.HandleFunc("/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "ig_exchange_token", r.URL.Query().Get("grant_type"))
		require.Equal(t, "short-lived-token", r.URL.Query().Get("access_token"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "long-lived-token",
			"token_type":   "bearer",
			"expires_in":   5184000,
		})
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "long-lived-token", r.URL.Query().Get("access_token"))
		json.NewEncoder(w).Encode(map[string]string{
			"id":           "17841400",
			"username":     "brandacct",
			"account_type": "BUSINESS",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newMemStore()
	h, states := flowHandler(t, store, srv.URL)

	loginRec := httptest.NewRecorder()
	state, err := states.Issue(loginRec, httptest.NewRequest(http.MethodGet, "/auth/instagram/login", nil), "instagram")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/instagram/callback?code=auth-code-1&state="+state, nil)
	req.AddCookie(authCookie(t, 7))
	for _, c := range loginRec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()

	h.HandleInstagramCallback(rec, req)

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code, rec.Body.String())
	assert.Equal(t, "http://localhost:3000/dashboard?instagram_linked=true", rec.Header().Get("Location"))

	require.Len(t, store.conns, 1)
	conn := store.conns["17841400"]
	require.NotNil(t, conn, "подключение должно лежать под каноническим id из /me")
	assert.Equal(t, uint(7), conn.UserID)
	assert.Equal(t, "brandacct", conn.InstagramUsername)
	assert.Equal(t, "long-lived-token", conn.AccessToken)
	require.NotNil(t, conn.TokenExpiresAt)
	assert.WithinDuration(t, time.Now().Add(5184000*time.Second), *conn.TokenExpiresAt, time.Minute)
}

func TestHandleInstagramCallback_ExchangeFailureSavesNothing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error_message": "Invalid authorization code",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newMemStore()
	h, states := flowHandler(t, store, srv.URL)

	loginRec := httptest.NewRecorder()
	state, err := states.Issue(loginRec, httptest.NewRequest(http.MethodGet, "/auth/instagram/login", nil), "instagram")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/instagram/callback?code=bad-code&state="+state, nil)
	req.AddCookie(authCookie(t, 7))
	for _, c := range loginRec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()

	h.HandleInstagramCallback(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.conns)
}

func publishBody() *strings.Reader {
	return strings.NewReader(`{"instagramUserId":"17841400","imageUrl":"https://cdn.example.com/p.jpg","caption":"hi"}`)
}

func healthyConnection(userID uint) *connections.Connection {
	expiry := time.Now().Add(60 * 24 * time.Hour)
	return &connections.Connection{
		UserID:            userID,
		InstagramUserID:   "17841400",
		InstagramUsername: "brandacct",
		AccessToken:       "healthy-token",
		TokenExpiresAt:    &expiry,
	}
}

func TestHandlePublish_Success(t *testing.T) {
	var containerToken string
	mux := http.NewServeMux()
	mux.HandleFunc("/v19.0/17841400/media", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "https://cdn.example.com/p.jpg", payload["image_url"])
		assert.Equal(t, "hi", payload["caption"])
		containerToken = payload["access_token"]
		json.NewEncoder(w).Encode(map[string]string{"id": "container-1"})
	})
	mux.HandleFunc("/v19.0/17841400/media_publish", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "container-1", payload["creation_id"])
		json.NewEncoder(w).Encode(map[string]string{"id": "post-9"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newMemStore()
	require.NoError(t, store.Upsert(context.Background(), healthyConnection(7)))
	h, _ := flowHandler(t, store, srv.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/instagram/post", publishBody())
	req.AddCookie(authCookie(t, 7))
	rec := httptest.NewRecorder()

	h.HandlePublish(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "healthy-token", containerToken)
	assert.Contains(t, rec.Body.String(), `"postId":"post-9"`)
}

func TestHandlePublish_ForeignConnection(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Upsert(context.Background(), healthyConnection(8)))
	h, _ := flowHandler(t, store, "http://127.0.0.1:0")

	req := httptest.NewRequest(http.MethodPost, "/api/instagram/post", publishBody())
	req.AddCookie(authCookie(t, 7))
	rec := httptest.NewRecorder()

	h.HandlePublish(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// Провайдер сообщает о недействительном токене (190/463) — наружу уходит
// 401 с needsReauth, чтобы фронтенд повел на повторную привязку.
func TestHandlePublish_InvalidTokenMapsToReauth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v19.0/17841400/media", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"message":       "Error validating access token: Session has expired",
				"code":          190,
				"error_subcode": 463,
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newMemStore()
	require.NoError(t, store.Upsert(context.Background(), healthyConnection(7)))
	h, _ := flowHandler(t, store, srv.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/instagram/post", publishBody())
	req.AddCookie(authCookie(t, 7))
	rec := httptest.NewRecorder()

	h.HandlePublish(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"needsReauth":true`)
}

// Контейнер создан, но publish упал: creationId возвращается в ответе,
// чтобы публикацию можно было повторить вручную.
func TestHandlePublish_FailedPublishReturnsCreationID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v19.0/17841400/media", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "container-1"})
	})
	mux.HandleFunc("/v19.0/17841400/media_publish", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"message": "Media upload has failed with error code 2207027",
				"code":    2207027,
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newMemStore()
	require.NoError(t, store.Upsert(context.Background(), healthyConnection(7)))
	h, _ := flowHandler(t, store, srv.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/instagram/post", publishBody())
	req.AddCookie(authCookie(t, 7))
	rec := httptest.NewRecorder()

	h.HandlePublish(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"creationId":"container-1"`)
}
