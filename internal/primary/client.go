// Package primary is the HTTP client for the primary auth service. It maps
// service-reported rejections onto the business error values and wraps
// everything else -- connection failures, 5xx, garbage bodies -- as
// transport failures so the session layer knows fallback applies.
package primary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"novachat/internal/domain"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "http://localhost:3001"
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) CheckUser(ctx context.Context, username string) (bool, error) {
	resp, err := c.post(ctx, "/api/check-user", map[string]string{"username": username})
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, c.rejection(resp)
	}
	var body struct {
		Exists bool `json:"exists"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, domain.Transport(err)
	}
	return body.Exists, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (*domain.Identity, error) {
	resp, err := c.post(ctx, "/api/login", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.rejection(resp)
	}
	return decodeIdentity(resp)
}

func (c *Client) Register(ctx context.Context, username, password, avatar string) (*domain.Identity, error) {
	payload := map[string]string{
		"username": username,
		"password": password,
	}
	if avatar != "" {
		payload["avatar"] = avatar
	}
	resp, err := c.post(ctx, "/api/register", payload)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, c.rejection(resp)
	}
	return decodeIdentity(resp)
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.Transport(err)
	}
	return resp, nil
}

// rejection translates a non-success response. Only statuses the service
// uses for authoritative rejections become business errors; anything else
// means the primary itself failed and the caller may fall back.
func (c *Client) rejection(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusUnauthorized:
		return domain.ErrInvalidCredential
	case http.StatusConflict:
		return domain.ErrAlreadyExists
	case http.StatusBadRequest:
		return domain.ErrInvalidInput
	default:
		if body.Error != "" {
			return domain.Transport(fmt.Errorf("primary service: %s (%s)", body.Error, resp.Status))
		}
		return domain.Transport(fmt.Errorf("primary service: %s", resp.Status))
	}
}

func decodeIdentity(resp *http.Response) (*domain.Identity, error) {
	var id domain.Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return nil, domain.Transport(err)
	}
	if id.SavedContacts == nil {
		id.SavedContacts = []string{}
	}
	return &id, nil
}
