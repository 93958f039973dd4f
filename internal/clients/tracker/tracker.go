// Package tracker is the HTTP client for the remote issue tracker. It speaks
// the tracker's JSON API: groups own labels and items, containers group items
// inside a group, and blocked-by relations link items. Groups cannot be
// deleted through the API and containers only archive.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/liftoffhq/liftoff/internal/core/logging"
)

const defaultTimeout = 15 * time.Second

// ErrNotFound is returned when the tracker reports a missing resource.
var ErrNotFound = errors.New("tracker: not found")

// StatusError is a non-2xx response from the tracker.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tracker: status %d", e.Code)
	}
	return fmt.Sprintf("tracker: status %d: %s", e.Code, e.Body)
}

// Group is a team-level namespace. The tracker provides no API to delete one.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Key  string `json:"key"`
}

// Container groups items within a group; the tracker archives containers
// instead of deleting them.
type Container struct {
	ID      string `json:"id"`
	GroupID string `json:"group_id"`
	Name    string `json:"name"`
	State   string `json:"state"`
}

// Label is a group-scoped item label.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Item states used by liftoff.
const (
	StateBacklog = "backlog"
	StateStarted = "started"
)

// Item is a remote work item.
type Item struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    int      `json:"priority"`
	State       string   `json:"state"`
	ContainerID string   `json:"container_id"`
	Labels      []Label  `json:"labels"`
	LabelIDs    []string `json:"label_ids"`
}

// ItemInput creates an item.
type ItemInput struct {
	GroupID     string   `json:"group_id"`
	ContainerID string   `json:"container_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    int      `json:"priority,omitempty"`
	LabelIDs    []string `json:"label_ids,omitempty"`
}

// ItemPatch updates an item; zero fields are left unchanged.
type ItemPatch struct {
	State       string `json:"state,omitempty"`
	ContainerID string `json:"container_id,omitempty"`
}

// Filter narrows ListItems. Orphans selects items with no container.
type Filter struct {
	GroupID     string
	ContainerID string
	Orphans     bool
}

// RelationTypeBlocks marks the depends-on item as blocking the dependent.
const RelationTypeBlocks = "blocks"

// Client talks to the tracker API.
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
		log:     logging.Component("tracker"),
	}
}

// FindGroup looks up a group by key. The found return is false when no group
// carries the key; that is not an error.
func (c *Client) FindGroup(ctx context.Context, key string) (Group, bool, error) {
	var groups []Group
	if err := c.do(ctx, http.MethodGet, "/v1/groups", nil, &groups); err != nil {
		return Group{}, false, fmt.Errorf("list groups: %w", err)
	}

	for _, g := range groups {
		if strings.EqualFold(g.Key, key) {
			return g, true, nil
		}
	}
	return Group{}, false, nil
}

// EnsureGroup finds a group by key, creating it when missing. The created
// return reports whether this call created the group; callers track created
// groups because they cannot be deleted later.
func (c *Client) EnsureGroup(ctx context.Context, name, key string) (Group, bool, error) {
	g, found, err := c.FindGroup(ctx, key)
	if err != nil {
		return Group{}, false, err
	}
	if found {
		c.log.Debug().Str("group_id", g.ID).Str("key", key).Msg("reusing existing group")
		return g, false, nil
	}

	var created Group
	body := map[string]string{"name": name, "key": key}
	if err := c.do(ctx, http.MethodPost, "/v1/groups", body, &created); err != nil {
		return Group{}, false, fmt.Errorf("create group: %w", err)
	}
	return created, true, nil
}

// ListContainers returns the group's containers.
func (c *Client) ListContainers(ctx context.Context, groupID string) ([]Container, error) {
	var out []Container
	path := "/v1/containers?group_id=" + url.QueryEscape(groupID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	return out, nil
}

// CreateContainer creates an item container in the group.
func (c *Client) CreateContainer(ctx context.Context, groupID, name string) (Container, error) {
	var out Container
	body := map[string]string{"group_id": groupID, "name": name}
	if err := c.do(ctx, http.MethodPost, "/v1/containers", body, &out); err != nil {
		return Container{}, fmt.Errorf("create container: %w", err)
	}
	return out, nil
}

// ArchiveContainer archives a container. The tracker has no container delete.
func (c *Client) ArchiveContainer(ctx context.Context, id string) error {
	path := "/v1/containers/" + url.PathEscape(id) + "/archive"
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("archive container: %w", err)
	}
	return nil
}

// ListItems returns items matching the filter.
func (c *Client) ListItems(ctx context.Context, f Filter) ([]Item, error) {
	q := url.Values{}
	if f.GroupID != "" {
		q.Set("group_id", f.GroupID)
	}
	if f.ContainerID != "" {
		q.Set("container_id", f.ContainerID)
	}
	if f.Orphans {
		q.Set("orphans", "true")
	}

	var out []Item
	if err := c.do(ctx, http.MethodGet, "/v1/items?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return out, nil
}

// CreateItem creates an item and returns it with its remote ID.
func (c *Client) CreateItem(ctx context.Context, in ItemInput) (Item, error) {
	var out Item
	if err := c.do(ctx, http.MethodPost, "/v1/items", in, &out); err != nil {
		return Item{}, fmt.Errorf("create item: %w", err)
	}
	return out, nil
}

// UpdateItem applies a partial update to an item.
func (c *Client) UpdateItem(ctx context.Context, id string, patch ItemPatch) error {
	path := "/v1/items/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPatch, path, patch, nil); err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// DeleteItem removes an item.
func (c *Client) DeleteItem(ctx context.Context, id string) error {
	path := "/v1/items/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// ListLabels returns the group's labels.
func (c *Client) ListLabels(ctx context.Context, groupID string) ([]Label, error) {
	var out []Label
	path := "/v1/labels?group_id=" + url.QueryEscape(groupID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	return out, nil
}

// CreateLabel creates a group-scoped label.
func (c *Client) CreateLabel(ctx context.Context, groupID, name string) (Label, error) {
	var out Label
	body := map[string]string{"group_id": groupID, "name": name}
	if err := c.do(ctx, http.MethodPost, "/v1/labels", body, &out); err != nil {
		return Label{}, fmt.Errorf("create label: %w", err)
	}
	return out, nil
}

// DeleteLabel removes a label.
func (c *Client) DeleteLabel(ctx context.Context, id string) error {
	path := "/v1/labels/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete label: %w", err)
	}
	return nil
}

// CreateRelation records that dependsOnID blocks itemID.
func (c *Client) CreateRelation(ctx context.Context, itemID, dependsOnID, typ string) error {
	body := map[string]string{
		"item_id":       itemID,
		"depends_on_id": dependsOnID,
		"type":          typ,
	}
	if err := c.do(ctx, http.MethodPost, "/v1/relations", body, nil); err != nil {
		return fmt.Errorf("create relation: %w", err)
	}
	return nil
}

// do sends one API request. A nil out discards the response body; 404 maps to
// ErrNotFound, other non-2xx to *StatusError.
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

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
