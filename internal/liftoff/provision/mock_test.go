package provision

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/liftoffhq/liftoff/internal/clients/completion"
	"github.com/liftoffhq/liftoff/internal/clients/deploy"
	"github.com/liftoffhq/liftoff/internal/clients/tracker"
	"github.com/liftoffhq/liftoff/internal/core/kv"
	"github.com/liftoffhq/liftoff/internal/core/workitem"
	"github.com/liftoffhq/liftoff/internal/scaffold"
)

// itemInput seeds the mock tracker with a minimal item.
func itemInput(groupID, containerID, title string) tracker.ItemInput {
	return tracker.ItemInput{
		GroupID:     groupID,
		ContainerID: containerID,
		Title:       title,
		Priority:    int(workitem.PriorityMedium),
	}
}

// mockTracker implements TrackerClient against in-memory state. Failures are
// injected per method name: failOn persists, failOnce decrements.
type mockTracker struct {
	mu     sync.Mutex
	nextID int

	groups     []tracker.Group
	containers []tracker.Container
	labels     []tracker.Label
	items      map[string]*tracker.Item
	itemOrder  []string
	relations  []mockRelation

	archived []string
	deleted  []string // "item:<id>" or "label:<id>" in call order

	calls    []string
	failOn   map[string]error
	failOnce map[string]int
}

type mockRelation struct {
	ItemID      string
	DependsOnID string
	Type        string
}

func newMockTracker() *mockTracker {
	return &mockTracker{
		items:    make(map[string]*tracker.Item),
		failOn:   make(map[string]error),
		failOnce: make(map[string]int),
	}
}

func (m *mockTracker) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

// check records the call and returns any injected failure. Callers hold mu.
func (m *mockTracker) check(method string) error {
	m.calls = append(m.calls, method)
	if n := m.failOnce[method]; n > 0 {
		m.failOnce[method] = n - 1
		return fmt.Errorf("%s: transient failure", method)
	}
	return m.failOn[method]
}

func (m *mockTracker) callCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (m *mockTracker) FindGroup(_ context.Context, key string) (tracker.Group, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("FindGroup"); err != nil {
		return tracker.Group{}, false, err
	}
	for _, g := range m.groups {
		if strings.EqualFold(g.Key, key) {
			return g, true, nil
		}
	}
	return tracker.Group{}, false, nil
}

func (m *mockTracker) EnsureGroup(_ context.Context, name, key string) (tracker.Group, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("EnsureGroup"); err != nil {
		return tracker.Group{}, false, err
	}
	for _, g := range m.groups {
		if strings.EqualFold(g.Key, key) {
			return g, false, nil
		}
	}
	g := tracker.Group{ID: m.id("grp"), Name: name, Key: key}
	m.groups = append(m.groups, g)
	return g, true, nil
}

func (m *mockTracker) ListContainers(_ context.Context, groupID string) ([]tracker.Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListContainers"); err != nil {
		return nil, err
	}
	var out []tracker.Container
	for _, c := range m.containers {
		if c.GroupID == groupID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockTracker) CreateContainer(_ context.Context, groupID, name string) (tracker.Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("CreateContainer"); err != nil {
		return tracker.Container{}, err
	}
	c := tracker.Container{ID: m.id("cont"), GroupID: groupID, Name: name, State: "active"}
	m.containers = append(m.containers, c)
	return c, nil
}

func (m *mockTracker) ArchiveContainer(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ArchiveContainer"); err != nil {
		return err
	}
	for i, c := range m.containers {
		if c.ID == id {
			m.containers[i].State = "archived"
			m.archived = append(m.archived, id)
			return nil
		}
	}
	return tracker.ErrNotFound
}

func (m *mockTracker) ListItems(_ context.Context, f tracker.Filter) ([]tracker.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListItems"); err != nil {
		return nil, err
	}
	var out []tracker.Item
	for _, id := range m.itemOrder {
		it, ok := m.items[id]
		if !ok {
			continue
		}
		if f.Orphans && it.ContainerID != "" {
			continue
		}
		if f.ContainerID != "" && it.ContainerID != f.ContainerID {
			continue
		}
		out = append(out, *it)
	}
	return out, nil
}

func (m *mockTracker) CreateItem(_ context.Context, in tracker.ItemInput) (tracker.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("CreateItem"); err != nil {
		return tracker.Item{}, err
	}
	it := tracker.Item{
		ID:          m.id("item"),
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		State:       tracker.StateBacklog,
		ContainerID: in.ContainerID,
		LabelIDs:    append([]string(nil), in.LabelIDs...),
	}
	m.items[it.ID] = &it
	m.itemOrder = append(m.itemOrder, it.ID)
	return it, nil
}

func (m *mockTracker) UpdateItem(_ context.Context, id string, patch tracker.ItemPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("UpdateItem"); err != nil {
		return err
	}
	it, ok := m.items[id]
	if !ok {
		return tracker.ErrNotFound
	}
	if patch.State != "" {
		it.State = patch.State
	}
	if patch.ContainerID != "" {
		it.ContainerID = patch.ContainerID
	}
	return nil
}

func (m *mockTracker) DeleteItem(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("DeleteItem"); err != nil {
		return err
	}
	if _, ok := m.items[id]; !ok {
		return tracker.ErrNotFound
	}
	delete(m.items, id)
	m.deleted = append(m.deleted, "item:"+id)
	return nil
}

func (m *mockTracker) ListLabels(_ context.Context, _ string) ([]tracker.Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListLabels"); err != nil {
		return nil, err
	}
	return append([]tracker.Label(nil), m.labels...), nil
}

func (m *mockTracker) CreateLabel(_ context.Context, _ string, name string) (tracker.Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("CreateLabel"); err != nil {
		return tracker.Label{}, err
	}
	l := tracker.Label{ID: m.id("label"), Name: name}
	m.labels = append(m.labels, l)
	return l, nil
}

func (m *mockTracker) DeleteLabel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("DeleteLabel"); err != nil {
		return err
	}
	for i, l := range m.labels {
		if l.ID == id {
			m.labels = append(m.labels[:i], m.labels[i+1:]...)
			m.deleted = append(m.deleted, "label:"+id)
			return nil
		}
	}
	return tracker.ErrNotFound
}

func (m *mockTracker) CreateRelation(_ context.Context, itemID, dependsOnID, typ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("CreateRelation"); err != nil {
		return err
	}
	m.relations = append(m.relations, mockRelation{ItemID: itemID, DependsOnID: dependsOnID, Type: typ})
	return nil
}

// seedItem stores an item directly, bypassing call accounting. Useful for
// fixtures like orphans that carry labels.
func (m *mockTracker) seedItem(it tracker.Item) tracker.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it.ID == "" {
		it.ID = m.id("item")
	}
	if it.State == "" {
		it.State = tracker.StateBacklog
	}
	copied := it
	m.items[it.ID] = &copied
	m.itemOrder = append(m.itemOrder, it.ID)
	return it
}

// itemByTitle finds a stored item by exact title. Returns nil when absent.
func (m *mockTracker) itemByTitle(title string) *tracker.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.Title == title {
			copied := *it
			return &copied
		}
	}
	return nil
}

// containerByName finds a stored container by exact name.
func (m *mockTracker) containerByName(name string) *tracker.Container {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.containers {
		if c.Name == name {
			copied := c
			return &copied
		}
	}
	return nil
}

// mockCodeHost implements CodeHost for testing.
type mockCodeHost struct {
	inits    []string
	commits  []string
	remotes  map[string]string
	pushes   int
	failPush error
}

func newMockCodeHost() *mockCodeHost {
	return &mockCodeHost{remotes: make(map[string]string)}
}

func (m *mockCodeHost) InitRepo(_ context.Context, dir, _ string) error {
	m.inits = append(m.inits, dir)
	return nil
}

func (m *mockCodeHost) CommitAll(_ context.Context, _, message string) (string, error) {
	m.commits = append(m.commits, message)
	return fmt.Sprintf("commit-%d", len(m.commits)), nil
}

func (m *mockCodeHost) AddRemote(_ context.Context, _, name, url string) error {
	m.remotes[name] = url
	return nil
}

func (m *mockCodeHost) Push(_ context.Context, _, _, _ string) error {
	if m.failPush != nil {
		return m.failPush
	}
	m.pushes++
	return nil
}

// mockDeploy implements DeployPlatform for testing.
type mockDeploy struct {
	servers      []deploy.Server
	sites        []deploy.Site
	lastServerID string
	failList     error
	failCreate   error
	failTLS      error
	tlsCalls     int
	deploys      int
}

func (m *mockDeploy) ListServers(_ context.Context) ([]deploy.Server, error) {
	if m.failList != nil {
		return nil, m.failList
	}
	return m.servers, nil
}

func (m *mockDeploy) CreateSite(_ context.Context, serverID string, in deploy.SiteInput) (deploy.Site, error) {
	if m.failCreate != nil {
		return deploy.Site{}, m.failCreate
	}
	m.lastServerID = serverID
	s := deploy.Site{ID: fmt.Sprintf("site-%d", len(m.sites)+1), Domain: in.Domain, Status: "installing"}
	m.sites = append(m.sites, s)
	return s, nil
}

func (m *mockDeploy) EnableTLS(_ context.Context, _, _ string) error {
	m.tlsCalls++
	return m.failTLS
}

func (m *mockDeploy) Deploy(_ context.Context, _, _ string) error {
	m.deploys++
	return nil
}

// mockScaffolder implements Scaffolder for testing.
type mockScaffolder struct {
	files     int
	docs      int
	failure   error
	rendered  []scaffold.Target
	docsCalls int
}

func (m *mockScaffolder) Render(_ context.Context, t scaffold.Target) (int, error) {
	if m.failure != nil {
		return 0, m.failure
	}
	m.rendered = append(m.rendered, t)
	return m.files, nil
}

func (m *mockScaffolder) RenderDocs(_ context.Context, t scaffold.Target) (int, error) {
	m.docsCalls++
	return m.docs, nil
}

// mockConfirmer implements Confirmer for testing.
type mockConfirmer struct {
	approve bool
	err     error
	asked   int
}

func (m *mockConfirmer) Confirm(_ context.Context, _, _ string) (bool, error) {
	m.asked++
	return m.approve, m.err
}

// mockRuns implements RunStore for testing.
type mockRuns struct {
	records []RunRecord
	err     error
}

func (m *mockRuns) Insert(_ context.Context, run RunRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, run)
	return nil
}

// mockCompletions implements CompletionService for testing.
type mockCompletions struct {
	reply   string
	err     error
	prompts []string
}

func (m *mockCompletions) Complete(_ context.Context, req completion.Request) (string, error) {
	m.prompts = append(m.prompts, req.Prompt)
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

// memKV implements kv.KV in memory for cache tests.
type memKV struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	value     json.RawMessage
	expiresAt *time.Time
}

func newMemKV() *memKV {
	return &memKV{entries: make(map[string]memEntry)}
}

func (m *memKV) Get(_ context.Context, key string, dest any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || (e.expiresAt != nil && time.Now().After(*e.expiresAt)) {
		return fmt.Errorf("get %q: %w", key, sql.ErrNoRows)
	}
	return json.Unmarshal(e.value, dest)
}

func (m *memKV) Set(ctx context.Context, key string, value any) error {
	return m.SetTTL(ctx, key, value, 0)
}

func (m *memKV) SetTTL(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memEntry{value: data}
	if ttl > 0 {
		t := time.Now().Add(ttl)
		e.expiresAt = &t
	}
	m.entries[key] = e
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memKV) Has(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok, nil
}

func (m *memKV) ListKeys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *memKV) GetRaw(_ context.Context, key string) (kv.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return kv.Entry{}, fmt.Errorf("get %q: %w", key, sql.ErrNoRows)
	}
	return kv.Entry{Key: key, Value: e.value, ExpiresAt: e.expiresAt}, nil
}

var _ kv.KV = (*memKV)(nil)
var _ TrackerClient = (*mockTracker)(nil)
