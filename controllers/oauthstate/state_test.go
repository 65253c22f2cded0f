package oauthstate

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issueState(t *testing.T, store *Store, flow string) (string, []*http.Cookie) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/instagram/login", nil)
	state, err := store.Issue(rec, req, flow)
	require.NoError(t, err)
	require.NotEmpty(t, state)
	return state, rec.Result().Cookies()
}

func TestIssueAndConsume(t *testing.T) {
	store := NewStore([]byte("session-secret"))
	state, cookies := issueState(t, store, "instagram")

	req := httptest.NewRequest(http.MethodGet, "/auth/instagram/callback", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()

	stored, ok := store.Consume(rec, req, "instagram")
	assert.True(t, ok)
	assert.Equal(t, state, stored)
}

func TestConsumeIsSingleUse(t *testing.T) {
	store := NewStore([]byte("session-secret"))
	_, cookies := issueState(t, store, "instagram")

	req := httptest.NewRequest(http.MethodGet, "/auth/instagram/callback", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	_, ok := store.Consume(rec, req, "instagram")
	require.True(t, ok)

	// Повтор с cookie из ответа первого Consume: state уже стерт.
	retry := httptest.NewRequest(http.MethodGet, "/auth/instagram/callback", nil)
	for _, c := range rec.Result().Cookies() {
		retry.AddCookie(c)
	}
	_, ok = store.Consume(httptest.NewRecorder(), retry, "instagram")
	assert.False(t, ok)
}

func TestConsumeWithoutIssue(t *testing.T) {
	store := NewStore([]byte("session-secret"))
	req := httptest.NewRequest(http.MethodGet, "/auth/instagram/callback", nil)

	_, ok := store.Consume(httptest.NewRecorder(), req, "instagram")
	assert.False(t, ok)
}

func TestFlowsAreIndependent(t *testing.T) {
	store := NewStore([]byte("session-secret"))
	_, cookies := issueState(t, store, "google")

	req := httptest.NewRequest(http.MethodGet, "/auth/instagram/callback", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}

	_, ok := store.Consume(httptest.NewRecorder(), req, "instagram")
	assert.False(t, ok)
}
