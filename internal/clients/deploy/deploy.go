// Package deploy is the HTTP client for the hosting platform: servers host
// sites, sites get TLS certificates and deployments. Provisioning treats this
// platform as best-effort decoration on top of a successful run.
package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/liftoffhq/liftoff/internal/core/logging"
)

const defaultTimeout = 30 * time.Second

// Server is a provisioned host on the platform.
type Server struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	IP   string `json:"ip_address"`
}

// Site is an application slot on a server.
type Site struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
	Status string `json:"status"`
}

// SiteInput creates a site.
type SiteInput struct {
	Domain      string `json:"domain"`
	ProjectType string `json:"project_type,omitempty"`
}

// Client talks to the hosting platform API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// New returns a Client for the given API base URL.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     logging.Component("deploy"),
	}
}

// ListServers returns the account's servers.
func (c *Client) ListServers(ctx context.Context) ([]Server, error) {
	var out struct {
		Servers []Server `json:"servers"`
	}
	if err := c.do(ctx, http.MethodGet, "/servers", nil, &out); err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	return out.Servers, nil
}

// CreateSite creates a site on the server.
func (c *Client) CreateSite(ctx context.Context, serverID string, in SiteInput) (Site, error) {
	var out struct {
		Site Site `json:"site"`
	}
	path := fmt.Sprintf("/servers/%s/sites", serverID)
	if err := c.do(ctx, http.MethodPost, path, in, &out); err != nil {
		return Site{}, fmt.Errorf("create site: %w", err)
	}
	return out.Site, nil
}

// EnableTLS requests a certificate for the site.
func (c *Client) EnableTLS(ctx context.Context, serverID, siteID string) error {
	path := fmt.Sprintf("/servers/%s/sites/%s/certificates", serverID, siteID)
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"type": "letsencrypt"}, nil); err != nil {
		return fmt.Errorf("enable tls: %w", err)
	}
	return nil
}

// Deploy triggers a deployment of the site.
func (c *Client) Deploy(ctx context.Context, serverID, siteID string) error {
	path := fmt.Sprintf("/servers/%s/sites/%s/deployments", serverID, siteID)
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("trigger deploy: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "liftoff")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Debug().Err(err).Msg("close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
