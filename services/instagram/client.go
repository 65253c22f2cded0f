package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"social-poster-backend/config"
)

const (
	defaultAPIBase   = "https://api.instagram.com"
	defaultGraphBase = "https://graph.instagram.com"
	graphVersion     = "v19.0"
)

// Права Instagram Business Login, перечисляются через запятую.
var loginScopes = []string{
	"instagram_business_basic",
	"instagram_business_manage_messages",
	"instagram_business_manage_comments",
	"instagram_business_content_publish",
	"instagram_business_manage_insights",
}

// Client ходит в Instagram API: обмен кода на токены, refresh и публикация.
// Все вызовы — одиночные запросы с ограниченным таймаутом, без ретраев.
type Client struct {
	clientID     string
	clientSecret string
	redirectURI  string

	// Базы переопределяются в тестах.
	APIBase   string
	GraphBase string
	http      *http.Client
	now       func() time.Time
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		clientID:     cfg.InstagramClientID,
		clientSecret: cfg.InstagramClientSecret,
		redirectURI:  cfg.InstagramRedirectURI,
		APIBase:      defaultAPIBase,
		GraphBase:    defaultGraphBase,
		http:         &http.Client{Timeout: cfg.HTTPTimeout},
		now:          time.Now,
	}
}

// LinkedAccount — результат полного трехшагового обмена.
type LinkedAccount struct {
	InstagramUserID string
	Username        string
	AccessToken     string
	ExpiresAt       time.Time
}

// RefreshedToken — результат refresh вызова.
type RefreshedToken struct {
	AccessToken string
	ExpiresAt   time.Time
}

// AuthorizeURL строит ссылку авторизации Instagram Business Login.
func (c *Client) AuthorizeURL(state string) string {
	params := url.Values{}
	params.Set("client_id", c.clientID)
	params.Set("redirect_uri", c.redirectURI)
	params.Set("scope", strings.Join(loginScopes, ","))
	params.Set("response_type", "code")
	params.Set("state", state)
	return c.APIBase + "/oauth/authorize?" + params.Encode()
}

// stringID принимает идентификатор и строкой, и числом: старый формат ответа
// отдает user_id числом, новый — строкой.
type stringID string

func (s *stringID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = stringID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = stringID(n.String())
	return nil
}

// ExchangeCodeForLongLivedToken выполняет обмен: код → короткоживущий токен →
// долгоживущий токен → канонический id бизнес-аккаунта и username.
// Любой не-2xx ответ на любом шаге — жесткая ошибка; до успеха третьего шага
// ничего не сохраняется.
func (c *Client) ExchangeCodeForLongLivedToken(ctx context.Context, code string) (*LinkedAccount, error) {
	// Шаг 1: код → короткоживущий токен. redirect_uri должен в точности
	// совпадать с зарегистрированным, иначе провайдер отклонит обмен.
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", c.redirectURI)
	form.Set("code", code)

	body, err := c.postForm(ctx, c.APIBase+"/oauth/access_token", form, "oauth/access_token")
	if err != nil {
		return nil, err
	}

	// Ответ приходит в двух форматах: {"data":[{...}]} у Business Login и
	// плоский {"access_token","user_id"}.
	var tokenResp struct {
		Data []struct {
			AccessToken string   `json:"access_token"`
			UserID      stringID `json:"user_id"`
		} `json:"data"`
		AccessToken string   `json:"access_token"`
		UserID      stringID `json:"user_id"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("decode short-lived token response: %w", err)
	}

	shortLivedToken := tokenResp.AccessToken
	if len(tokenResp.Data) > 0 {
		shortLivedToken = tokenResp.Data[0].AccessToken
	}
	if shortLivedToken == "" {
		return nil, &ProtocolError{Endpoint: "oauth/access_token", Missing: "access_token"}
	}

	// Шаг 2: короткоживущий токен → долгоживущий с expires_in в секундах.
	exchangeURL := fmt.Sprintf("%s/access_token?grant_type=ig_exchange_token&client_secret=%s&access_token=%s",
		c.GraphBase, url.QueryEscape(c.clientSecret), url.QueryEscape(shortLivedToken))

	var longLived struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := c.getJSON(ctx, exchangeURL, &longLived, "access_token"); err != nil {
		return nil, err
	}
	if longLived.AccessToken == "" {
		return nil, &ProtocolError{Endpoint: "access_token", Missing: "access_token"}
	}
	if longLived.ExpiresIn <= 0 {
		return nil, &ProtocolError{Endpoint: "access_token", Missing: "expires_in"}
	}
	expiresAt := c.now().Add(time.Duration(longLived.ExpiresIn) * time.Second)

	// Шаг 3: профиль по долгоживущему токену. Отсюда берется канонический id
	// бизнес-аккаунта — он замещает user_id из первого шага.
	meURL := fmt.Sprintf("%s/me?fields=id,username,account_type&access_token=%s",
		c.GraphBase, url.QueryEscape(longLived.AccessToken))

	var me struct {
		ID          string `json:"id"`
		Username    string `json:"username"`
		AccountType string `json:"account_type"`
	}
	if err := c.getJSON(ctx, meURL, &me, "me"); err != nil {
		return nil, err
	}
	if me.ID == "" {
		return nil, &ProtocolError{Endpoint: "me", Missing: "id"}
	}
	if me.Username == "" {
		return nil, &ProtocolError{Endpoint: "me", Missing: "username"}
	}

	return &LinkedAccount{
		InstagramUserID: me.ID,
		Username:        me.Username,
		AccessToken:     longLived.AccessToken,
		ExpiresAt:       expiresAt,
	}, nil
}

// RefreshAccessToken продлевает действующий долгоживущий токен.
// Провайдер отказывает уже истекшим токенам — проверка до вызова на стороне
// TokenManager.
func (c *Client) RefreshAccessToken(ctx context.Context, accessToken string) (*RefreshedToken, error) {
	refreshURL := fmt.Sprintf("%s/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		c.GraphBase, url.QueryEscape(accessToken))

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := c.getJSON(ctx, refreshURL, &resp, "refresh_access_token"); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &ProtocolError{Endpoint: "refresh_access_token", Missing: "access_token"}
	}
	if resp.ExpiresIn <= 0 {
		return nil, &ProtocolError{Endpoint: "refresh_access_token", Missing: "expires_in"}
	}

	return &RefreshedToken{
		AccessToken: resp.AccessToken,
		ExpiresAt:   c.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

// CreateMediaContainer создает контейнер публикации и возвращает creation id.
func (c *Client) CreateMediaContainer(ctx context.Context, instagramUserID, imageURL, caption, accessToken string) (string, error) {
	payload := map[string]string{
		"image_url":    imageURL,
		"access_token": accessToken,
	}
	if caption != "" {
		payload["caption"] = caption
	}

	containerURL := fmt.Sprintf("%s/%s/%s/media", c.GraphBase, graphVersion, instagramUserID)

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, containerURL, payload, &resp, "media"); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &ProtocolError{Endpoint: "media", Missing: "id"}
	}
	return resp.ID, nil
}

// PublishMediaContainer публикует ранее созданный контейнер и возвращает id поста.
func (c *Client) PublishMediaContainer(ctx context.Context, instagramUserID, creationID, accessToken string) (string, error) {
	payload := map[string]string{
		"creation_id":  creationID,
		"access_token": accessToken,
	}

	publishURL := fmt.Sprintf("%s/%s/%s/media_publish", c.GraphBase, graphVersion, instagramUserID)

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, publishURL, payload, &resp, "media_publish"); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &ProtocolError{Endpoint: "media_publish", Missing: "id"}
	}
	return resp.ID, nil
}

func (c *Client) postForm(ctx context.Context, rawURL string, form url.Values, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, endpoint)
}

func (c *Client) postJSON(ctx context.Context, rawURL string, payload, out interface{}, endpoint string) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("serialize request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	body, err := c.do(req, endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call instagram %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read instagram %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp.StatusCode, body, endpoint)
	}
	return body, nil
}

// decodeAPIError разбирает оба формата ошибок: конверт Graph API
// {"error":{"message","code","error_subcode"}} и плоский {"error_message"}
// у api.instagram.com.
func decodeAPIError(status int, body []byte, endpoint string) *APIError {
	apiErr := &APIError{Endpoint: endpoint, Status: status}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
			Subcode int    `json:"error_subcode"`
		} `json:"error"`
		ErrorMessage string `json:"error_message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Subcode = envelope.Error.Subcode
		apiErr.Message = envelope.Error.Message
		if apiErr.Message == "" {
			apiErr.Message = envelope.ErrorMessage
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
