package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
)

// WebhookProvisioner calls the identity provider's admin API:
// POST {base}/users and DELETE {base}/users/{id}.
type WebhookProvisioner struct {
	base  string
	token string
	http  *http.Client
}

func NewWebhookProvisioner(baseURL, token string) *WebhookProvisioner {
	return &WebhookProvisioner{
		base:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 5 * time.Second},
	}
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type createUserResponse struct {
	ID string `json:"id"`
}

func (p *WebhookProvisioner) Create(ctx context.Context, email, password string, role model.StaffRole) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	raw, err := json.Marshal(createUserRequest{Email: email, Password: password, Role: string(role)})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+"/users", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return "", ErrDuplicate
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("identity provider returned %d", resp.StatusCode)
	}
	var out createUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode identity response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("identity provider returned no user id")
	}
	return out.ID, nil
}

// Delete treats a missing identity as already deleted.
func (p *WebhookProvisioner) Delete(ctx context.Context, userID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.base+"/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return err
	}
	resp, err := p.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("identity provider returned %d", resp.StatusCode)
	}
	return nil
}

func (p *WebhookProvisioner) do(req *http.Request) (*http.Response, error) {
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	return p.http.Do(req)
}
