package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"LavTutorClient/internal/config"
	"LavTutorClient/internal/helper"
	"LavTutorClient/internal/model"
)

const (
	fetchMaxRetries = 3
	fetchBaseDelay  = 500 * time.Millisecond
)

// APIClient wraps the platform's REST endpoints the sync layer depends
// on: identity resolution, the roster and notification fetches, and the
// two mark-read calls. Fetches retry on transient failures; the
// mark-read calls are single-shot because the caller treats them as
// background persistence.
type APIClient struct {
	httpClient *http.Client
	cfg        *config.AppConfig
}

func NewAPIClient(cfg *config.AppConfig, httpClient *http.Client) *APIClient {
	return &APIClient{
		httpClient: httpClient,
		cfg:        cfg,
	}
}

type authUserResponse struct {
	Sub string `json:"sub"`
}

// ResolveIdentity resolves the authenticated account to its platform
// profile. The session token identifies the account; the backend maps
// it to the id number every chat record is keyed by.
func (c *APIClient) ResolveIdentity(ctx context.Context) (*model.UserProfile, error) {
	var auth authUserResponse
	if err := c.getJSON(ctx, "/api/auth/get_user", &auth); err != nil {
		return nil, fmt.Errorf("fetch authenticated user: %w", err)
	}
	if auth.Sub == "" {
		return nil, errors.New("no authenticated user in session")
	}

	var profile model.UserProfile
	if err := c.getJSON(ctx, "/api/tutee/by_google/"+url.PathEscape(auth.Sub), &profile); err != nil {
		return nil, fmt.Errorf("fetch platform profile: %w", err)
	}
	if profile.IDNumber == "" {
		return nil, fmt.Errorf("account %s has no platform profile", auth.Sub)
	}
	return &profile, nil
}

// ChatPartners fetches the user's conversation roster with partner
// info and initial unread counts.
func (c *APIClient) ChatPartners(ctx context.Context, userID string) ([]model.Conversation, error) {
	var list []model.Conversation
	path := "/api/chat/partners?user_id=" + url.QueryEscape(userID)
	if err := c.getJSON(ctx, path, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Notifications fetches every notification for the user.
func (c *APIClient) Notifications(ctx context.Context, userID string) ([]model.Notification, error) {
	var list []model.Notification
	if err := c.getJSON(ctx, "/api/notifications/user/"+url.PathEscape(userID), &list); err != nil {
		return nil, err
	}
	return list, nil
}

// MarkNotificationRead persists the read flag for one notification.
func (c *APIClient) MarkNotificationRead(ctx context.Context, notificationID int64) error {
	return c.post(ctx, "/api/notifications/read/"+strconv.FormatInt(notificationID, 10))
}

// MarkChatNotificationsRead persists the read flag for every
// NEW_MESSAGE notification of one conversation and recipient.
func (c *APIClient) MarkChatNotificationsRead(ctx context.Context, appointmentID int64, recipientID string) error {
	path := fmt.Sprintf("/api/notifications/mark_chat_read/%d/%s", appointmentID, url.PathEscape(recipientID))
	return c.post(ctx, path)
}

func (c *APIClient) getJSON(ctx context.Context, path string, out any) error {
	body, err := helper.RetryWithBackoff(ctx, func() ([]byte, bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBaseURL+path, nil)
		if err != nil {
			return nil, false, err
		}
		c.authorize(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, true, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, true, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, helper.ShouldRetryHTTP(resp, nil), helper.NewAPIError(resp.StatusCode, string(data))
		}
		return data, false, nil
	}, fetchMaxRetries, fetchBaseDelay)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

type successResponse struct {
	Success bool `json:"success"`
}

func (c *APIClient) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return helper.NewAPIError(resp.StatusCode, string(data))
	}

	var result successResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if !result.Success {
		return fmt.Errorf("%s reported failure", path)
	}
	return nil
}

func (c *APIClient) authorize(req *http.Request) {
	if c.cfg.SessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.SessionToken)
	}
}
