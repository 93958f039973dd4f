package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftoffhq/liftoff/internal/clients/tracker"
	"github.com/liftoffhq/liftoff/internal/core/workitem"
	"github.com/liftoffhq/liftoff/internal/retry"
)

// fastPolicy keeps retries but drops the backoff so tests stay quick.
func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialDelay: 0}
}

func seedGroupAndContainer(t *testing.T, mock *mockTracker) (tracker.Group, tracker.Container) {
	t.Helper()
	group, _, err := mock.EnsureGroup(context.Background(), "Platform", "PLT")
	require.NoError(t, err)
	container, err := mock.CreateContainer(context.Background(), group.ID, "Demo Shop")
	require.NoError(t, err)
	mock.calls = nil
	return group, container
}

func TestCreateAll_CreatesItemsRelationsAndStartsFirst(t *testing.T) {
	mock := newMockTracker()
	group, container := seedGroupAndContainer(t, mock)

	items := []workitem.Item{
		{Title: "Set up schema", Priority: workitem.PriorityHigh, Labels: []string{"backend"}},
		{Title: "Build API", Priority: workitem.PriorityMedium, DependsOn: []string{"Set up schema"}},
		{Title: "Wire frontend", Priority: workitem.PriorityLow, DependsOn: []string{"Build API"}},
	}

	state := &RollbackState{}
	builder := NewBuilder(mock, fastPolicy(), NewPacer(0), state, true)

	res, err := builder.CreateAll(context.Background(), group.ID, container.ID, items)
	require.NoError(t, err)

	assert.Equal(t, 3, res.CreatedItems)
	assert.Equal(t, 0, res.ReusedItems)
	assert.Equal(t, 1, res.CreatedLabels)
	assert.Equal(t, 2, res.Relations)
	assert.Equal(t, 0, res.SkippedDeps)

	// Items were created in input order.
	require.Len(t, mock.itemOrder, 3)
	assert.Equal(t, "Set up schema", mock.items[mock.itemOrder[0]].Title)
	assert.Equal(t, "Build API", mock.items[mock.itemOrder[1]].Title)
	assert.Equal(t, "Wire frontend", mock.items[mock.itemOrder[2]].Title)

	// Relations point dependent -> dependency.
	schema := mock.itemByTitle("Set up schema")
	api := mock.itemByTitle("Build API")
	front := mock.itemByTitle("Wire frontend")
	require.Len(t, mock.relations, 2)
	assert.Equal(t, mockRelation{ItemID: api.ID, DependsOnID: schema.ID, Type: tracker.RelationTypeBlocks}, mock.relations[0])
	assert.Equal(t, mockRelation{ItemID: front.ID, DependsOnID: api.ID, Type: tracker.RelationTypeBlocks}, mock.relations[1])

	// The only item without dependencies was auto-started.
	assert.Equal(t, "Set up schema", res.StartedTitle)
	assert.Equal(t, tracker.StateStarted, schema.State)
	assert.Equal(t, tracker.StateBacklog, api.State)

	// Every created resource is recorded for rollback in creation order.
	assert.Equal(t, mock.itemOrder, state.ItemIDs)
	require.Len(t, state.LabelIDs, 1)
}

func TestCreateAll_SkipsExistingTitlesCaseInsensitively(t *testing.T) {
	mock := newMockTracker()
	group, container := seedGroupAndContainer(t, mock)

	existing, err := mock.CreateItem(context.Background(), itemInput(group.ID, container.ID, "set up SCHEMA"))
	require.NoError(t, err)

	items := []workitem.Item{
		{Title: "Set up schema", Priority: workitem.PriorityHigh},
		{Title: "Build API", Priority: workitem.PriorityMedium, DependsOn: []string{"Set up schema"}},
	}

	state := &RollbackState{}
	builder := NewBuilder(mock, fastPolicy(), NewPacer(0), state, false)

	res, err := builder.CreateAll(context.Background(), group.ID, container.ID, items)
	require.NoError(t, err)

	assert.Equal(t, 1, res.CreatedItems)
	assert.Equal(t, 1, res.ReusedItems)
	assert.Len(t, mock.itemOrder, 2, "the existing item must not be duplicated")

	// The reused item was never recorded for rollback; it is not ours.
	require.Len(t, state.ItemIDs, 1)
	assert.NotContains(t, state.ItemIDs, existing.ID)

	// The dependency resolved against the pre-existing item's ID.
	require.Len(t, mock.relations, 1)
	assert.Equal(t, existing.ID, mock.relations[0].DependsOnID)
}

func TestCreateAll_ReusesLabelsByName(t *testing.T) {
	mock := newMockTracker()
	group, container := seedGroupAndContainer(t, mock)

	preexisting, err := mock.CreateLabel(context.Background(), group.ID, "backend")
	require.NoError(t, err)

	items := []workitem.Item{
		{Title: "Build API", Priority: workitem.PriorityMedium, Labels: []string{"Backend", "api"}},
	}

	state := &RollbackState{}
	builder := NewBuilder(mock, fastPolicy(), NewPacer(0), state, false)

	res, err := builder.CreateAll(context.Background(), group.ID, container.ID, items)
	require.NoError(t, err)

	assert.Equal(t, 1, res.CreatedLabels, "only the unknown label is created")
	require.Len(t, state.LabelIDs, 1)
	assert.NotContains(t, state.LabelIDs, preexisting.ID)

	item := mock.itemByTitle("Build API")
	require.NotNil(t, item)
	assert.Len(t, item.LabelIDs, 2)
	assert.Contains(t, item.LabelIDs, preexisting.ID)
}

func TestCreateAll_SkipsUnknownDependencies(t *testing.T) {
	mock := newMockTracker()
	group, container := seedGroupAndContainer(t, mock)

	items := []workitem.Item{
		{Title: "Set up schema", Priority: workitem.PriorityHigh},
		{Title: "Build API", Priority: workitem.PriorityMedium, DependsOn: []string{"Ghost task", "Set up schema"}},
	}

	builder := NewBuilder(mock, fastPolicy(), NewPacer(0), nil, false)

	res, err := builder.CreateAll(context.Background(), group.ID, container.ID, items)
	require.NoError(t, err, "an unresolvable dependency must not fail the run")

	assert.Equal(t, 1, res.SkippedDeps)
	assert.Equal(t, 1, res.Relations, "the resolvable dependency is still wired")
}

func TestCreateAll_AutoStartDisabled(t *testing.T) {
	mock := newMockTracker()
	group, container := seedGroupAndContainer(t, mock)

	items := []workitem.Item{
		{Title: "Set up schema", Priority: workitem.PriorityHigh},
	}

	builder := NewBuilder(mock, fastPolicy(), NewPacer(0), nil, false)

	res, err := builder.CreateAll(context.Background(), group.ID, container.ID, items)
	require.NoError(t, err)

	assert.Empty(t, res.StartedTitle)
	assert.Zero(t, mock.callCount("UpdateItem"))
	assert.Equal(t, tracker.StateBacklog, mock.itemByTitle("Set up schema").State)
}

func TestCreateAll_RetriesTransientFailures(t *testing.T) {
	mock := newMockTracker()
	group, container := seedGroupAndContainer(t, mock)

	// Two failures fit inside a three attempt budget.
	mock.failOnce["CreateItem"] = 2

	items := []workitem.Item{
		{Title: "Set up schema", Priority: workitem.PriorityHigh},
	}

	builder := NewBuilder(mock, fastPolicy(), NewPacer(0), nil, false)

	res, err := builder.CreateAll(context.Background(), group.ID, container.ID, items)
	require.NoError(t, err)

	assert.Equal(t, 1, res.CreatedItems)
	assert.Equal(t, 3, mock.callCount("CreateItem"))
}

func TestCreateAll_ReturnsRelationErrorUnchanged(t *testing.T) {
	mock := newMockTracker()
	group, container := seedGroupAndContainer(t, mock)

	boom := errors.New("tracker: status 502")
	mock.failOn["CreateRelation"] = boom

	items := []workitem.Item{
		{Title: "Set up schema", Priority: workitem.PriorityHigh},
		{Title: "Build API", Priority: workitem.PriorityMedium, DependsOn: []string{"Set up schema"}},
	}

	state := &RollbackState{}
	builder := NewBuilder(mock, fastPolicy(), NewPacer(0), state, true)

	_, err := builder.CreateAll(context.Background(), group.ID, container.ID, items)
	require.Error(t, err)
	assert.Same(t, boom, err, "the failing call's error must come back unchanged")

	// Both items were created and recorded before the failure.
	assert.Len(t, state.ItemIDs, 2)
}

func TestCreateAll_CycleStillCreatesItems(t *testing.T) {
	mock := newMockTracker()
	group, container := seedGroupAndContainer(t, mock)

	items := []workitem.Item{
		{Title: "A", Priority: workitem.PriorityHigh, DependsOn: []string{"B"}},
		{Title: "B", Priority: workitem.PriorityHigh, DependsOn: []string{"A"}},
	}

	builder := NewBuilder(mock, fastPolicy(), NewPacer(0), nil, true)

	res, err := builder.CreateAll(context.Background(), group.ID, container.ID, items)
	require.NoError(t, err)

	assert.Equal(t, 2, res.CreatedItems)
	assert.Equal(t, 2, res.Relations)
	assert.Empty(t, res.StartedTitle, "every item is blocked, nothing to start")
}

func TestCreateAll_PausesBetweenWrites(t *testing.T) {
	mock := newMockTracker()
	group, container := seedGroupAndContainer(t, mock)

	pauses := 0
	pacer := NewPacer(time.Millisecond)
	pacer.sleep = func(time.Duration) { pauses++ }

	items := []workitem.Item{
		{Title: "Set up schema", Priority: workitem.PriorityHigh, Labels: []string{"backend"}},
		{Title: "Build API", Priority: workitem.PriorityMedium, DependsOn: []string{"Set up schema"}},
	}

	builder := NewBuilder(mock, fastPolicy(), pacer, nil, false)

	_, err := builder.CreateAll(context.Background(), group.ID, container.ID, items)
	require.NoError(t, err)

	// One pause per write: the label, two items, one relation.
	assert.Equal(t, 4, pauses)
}
