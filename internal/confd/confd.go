// Package confd queries the configuration/directory service for tenants,
// users, lines and switchboards. It is read-only. Connectivity failures
// surface as 503-family errors, deliberately distinct from not-found: a
// missing switchboard is a client mistake, an unreachable directory is an
// operational incident.
package confd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wazo-platform/wazo-calld-sub001/internal/errs"
)

// ErrNotFound is returned when the directory does not know the resource.
var ErrNotFound = errors.New("confd: not found")

// IsNotFound reports whether err denotes a resource the directory does not
// know.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// User is a directory user.
type User struct {
	UUID       string `json:"uuid"`
	TenantUUID string `json:"tenant_uuid"`
	Firstname  string `json:"firstname"`
	Lastname   string `json:"lastname"`
}

// Line is one endpoint a user can be reached at.
type Line struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
}

// Switchboard is the directory's description of an operator switchboard.
// Its existence is defined here, not in the daemon.
type Switchboard struct {
	UUID             string `json:"uuid"`
	TenantUUID       string `json:"tenant_uuid"`
	Name             string `json:"name"`
	QueueMusicOnHold string `json:"queue_music_on_hold"`
	HoldMusicOnHold  string `json:"waiting_room_music_on_hold"`
}

// Client is an HTTP client for the directory service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient builds a directory client. baseURL is the service root, token
// is sent as the service auth token on every request.
func NewClient(baseURL, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		token:      token,
	}
}

// User fetches one user by uuid.
func (c *Client) User(ctx context.Context, uuid string) (User, error) {
	var user User
	if err := c.get(ctx, "/users/"+uuid, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// UserLines fetches the lines of a user, most preferred first.
func (c *Client) UserLines(ctx context.Context, uuid string) ([]Line, error) {
	var body struct {
		Items []Line `json:"items"`
	}
	if err := c.get(ctx, "/users/"+uuid+"/lines", &body); err != nil {
		return nil, err
	}
	return body.Items, nil
}

// Switchboard fetches one switchboard by uuid.
func (c *Client) Switchboard(ctx context.Context, uuid string) (Switchboard, error) {
	var switchboard Switchboard
	if err := c.get(ctx, "/switchboards/"+uuid, &switchboard); err != nil {
		return Switchboard{}, err
	}
	return switchboard, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("X-Auth-Token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Raw transport failures never escape this boundary.
		return errs.Unreachable("confd", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case resp.StatusCode >= 500:
		return errs.Unreachable("confd", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("confd %s: status %d: %s", path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
