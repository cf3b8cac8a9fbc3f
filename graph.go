package strata

// DependencyGraph orders scopes by their depends relation.
type DependencyGraph struct {
	nodes map[string]*node
	order []string // Preserve definition order
}

type node struct {
	name         string
	dependencies []string
}

// NewDependencyGraph creates a new dependency graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[string]*node),
		order: make([]string, 0),
	}
}

// AddNode adds a node with its dependencies.
// Nodes are processed in the order they are added (FIFO) when no dependencies exist.
func (g *DependencyGraph) AddNode(name string, dependencies []string) {
	if _, ok := g.nodes[name]; !ok {
		g.order = append(g.order, name)
	}

	g.nodes[name] = &node{
		name:         name,
		dependencies: dependencies,
	}
}

// GetDependencies returns the dependency names for a node.
func (g *DependencyGraph) GetDependencies(name string) []string {
	if node, ok := g.nodes[name]; ok {
		return node.dependencies
	}

	return nil
}

// HasNode checks if a node exists in the graph.
func (g *DependencyGraph) HasNode(name string) bool {
	_, ok := g.nodes[name]

	return ok
}

// TopologicalSort returns nodes in dependency order.
// Nodes without dependencies maintain their registration order (FIFO).
// Returns a *CycleError naming the full chain if a cycle exists.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	visited := make(map[string]bool)
	visiting := make(map[string]bool)
	result := make([]string, 0, len(g.nodes))

	for _, name := range g.order {
		if err := g.visit(name, visited, visiting, nil, &result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// visit performs DFS traversal.
func (g *DependencyGraph) visit(name string, visited, visiting map[string]bool, stack []string, result *[]string) error {
	if visited[name] {
		return nil
	}

	if visiting[name] {
		start := 0
		for i, s := range stack {
			if s == name {
				start = i

				break
			}
		}

		chain := append(append([]string(nil), stack[start:]...), name)

		return &CycleError{Chain: chain}
	}

	node := g.nodes[name]
	if node == nil {
		// Unknown dependency, reported by the caller
		return nil
	}

	visiting[name] = true
	stack = append(stack, name)

	for _, dep := range node.dependencies {
		if err := g.visit(dep, visited, visiting, stack, result); err != nil {
			return err
		}
	}

	visiting[name] = false
	visited[name] = true
	*result = append(*result, name)

	return nil
}
