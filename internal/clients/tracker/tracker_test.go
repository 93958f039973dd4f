package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-token")
}

func TestEnsureGroup_ReusesExisting(t *testing.T) {
	creates := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/groups":
			_ = json.NewEncoder(w).Encode([]Group{{ID: "grp-1", Name: "Engineering", Key: "ENG"}})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/groups":
			creates++
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	got, created, err := c.EnsureGroup(context.Background(), "Engineering", "eng")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "grp-1", got.ID)
	assert.Equal(t, 0, creates, "existing group must not be recreated")
}

func TestEnsureGroup_CreatesWhenMissing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/groups":
			_ = json.NewEncoder(w).Encode([]Group{})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/groups":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Engineering", body["name"])
			assert.Equal(t, "ENG", body["key"])
			_ = json.NewEncoder(w).Encode(Group{ID: "grp-9", Name: body["name"], Key: body["key"]})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	got, created, err := c.EnsureGroup(context.Background(), "Engineering", "ENG")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "grp-9", got.ID)
}

func TestCreateItem(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/items", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in ItemInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "Implement authentication", in.Title)
		assert.Equal(t, 2, in.Priority)

		_ = json.NewEncoder(w).Encode(Item{ID: "itm-1", Title: in.Title})
	})

	got, err := c.CreateItem(context.Background(), ItemInput{
		GroupID:  "grp-1",
		Title:    "Implement authentication",
		Priority: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "itm-1", got.ID)
}

func TestListItems_OrphanFilter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "grp-1", r.URL.Query().Get("group_id"))
		assert.Equal(t, "true", r.URL.Query().Get("orphans"))
		_ = json.NewEncoder(w).Encode([]Item{{ID: "itm-7", Title: "Stray"}})
	})

	items, err := c.ListItems(context.Background(), Filter{GroupID: "grp-1", Orphans: true})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "itm-7", items[0].ID)
}

func TestCreateRelation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/relations", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "itm-b", body["item_id"])
		assert.Equal(t, "itm-a", body["depends_on_id"])
		assert.Equal(t, RelationTypeBlocks, body["type"])
		w.WriteHeader(http.StatusCreated)
	})

	err := c.CreateRelation(context.Background(), "itm-b", "itm-a", RelationTypeBlocks)
	require.NoError(t, err)
}

func TestDo_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	err := c.DeleteItem(context.Background(), "itm-gone")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDo_StatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limited"))
	})

	_, err := c.CreateItem(context.Background(), ItemInput{Title: "x"})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
	assert.Contains(t, statusErr.Body, "rate limited")
}
