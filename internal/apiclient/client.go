// Package apiclient talks to the tracker HTTP API on behalf of a signed-in
// user. Error responses come back as classified apperr errors so callers can
// roll back optimistic changes by kind.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/govindrajpootecosoul/project-tracker/internal/apperr"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
}

// New builds a client for the API mounted at baseURL, e.g.
// http://localhost:8080/api.
func New(baseURL, token string) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid api url %q", baseURL)
	}
	return &Client{
		baseURL:    u,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

var kindByStatus = map[int]func(string, ...interface{}) error{
	http.StatusBadRequest:         apperr.Validation,
	http.StatusForbidden:          apperr.Forbidden,
	http.StatusNotFound:           apperr.NotFound,
	http.StatusConflict:           apperr.Conflict,
	http.StatusPreconditionFailed: apperr.PreconditionFailed,
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, reqBody, out interface{}) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		if classify, ok := kindByStatus[resp.StatusCode]; ok {
			return classify("%s", msg)
		}
		return errors.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(respBody, out), "decode response")
}

func (c *Client) ListRequests(ctx context.Context, direction models.RequestDirection) ([]models.Request, error) {
	var out struct {
		Requests []models.Request `json:"requests"`
	}
	q := url.Values{"direction": {string(direction)}}
	if err := c.doJSON(ctx, http.MethodGet, "/requests", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Requests, nil
}

func (c *Client) UpdateRequestStatus(ctx context.Context, id string, status models.RequestStatus) (models.Request, error) {
	var out models.Request
	err := c.doJSON(ctx, http.MethodPatch, "/requests/"+url.PathEscape(id)+"/status", nil,
		map[string]models.RequestStatus{"status": status}, &out)
	return out, err
}

func (c *Client) ListNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	var out struct {
		Notifications []models.Notification `json:"notifications"`
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.doJSON(ctx, http.MethodGet, "/notifications", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/notifications/unread-count", nil, nil, &out)
	return out.Count, err
}

func (c *Client) MarkAllRead(ctx context.Context) (int, error) {
	var out struct {
		Updated int `json:"updated"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/notifications/read-all", nil, nil, &out)
	return out.Updated, err
}
