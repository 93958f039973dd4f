package workitem

// Edge is a directed dependency between two items in a batch, keyed by index:
// items[From] depends on items[To].
type Edge struct {
	From int
	To   int
}

// Edges resolves each item's DependsOn titles against the batch itself and
// returns the local dependency edges. Titles that name no item in the batch
// are returned separately; they may still resolve against remote state when
// relations are wired.
func Edges(items []Item) ([]Edge, []string) {
	index := make(map[string]int, len(items))
	for i, item := range items {
		index[NormalizeTitle(item.Title)] = i
	}

	var edges []Edge
	var unresolved []string
	for i, item := range items {
		for _, dep := range item.DependsOn {
			j, ok := index[NormalizeTitle(dep)]
			if !ok {
				unresolved = append(unresolved, dep)
				continue
			}
			edges = append(edges, Edge{From: i, To: j})
		}
	}
	return edges, unresolved
}

// DetectCycle runs Kahn's algorithm over the batch-local dependency edges and
// returns the titles of items caught in a cycle, in input order. An empty
// result means the graph is acyclic.
func DetectCycle(items []Item) []string {
	edges, _ := Edges(items)

	indegree := make([]int, len(items))
	dependents := make([][]int, len(items))
	for _, e := range edges {
		indegree[e.From]++
		dependents[e.To] = append(dependents[e.To], e.From)
	}

	queue := make([]int, 0, len(items))
	for i := range items {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	processed := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		processed++
		for _, dep := range dependents[n] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if processed == len(items) {
		return nil
	}

	var cycle []string
	for i := range items {
		if indegree[i] > 0 {
			cycle = append(cycle, items[i].Title)
		}
	}
	return cycle
}

// FirstUnblocked returns the index of the item that should be started first:
// the item with no dependencies and the lowest priority ordinal. Ties keep
// input order. Returns -1 when every item has dependencies.
func FirstUnblocked(items []Item) int {
	best := -1
	for i, item := range items {
		if len(item.DependsOn) != 0 {
			continue
		}
		if best == -1 || item.Priority < items[best].Priority {
			best = i
		}
	}
	return best
}
