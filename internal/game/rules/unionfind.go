package rules

// disjointSet is a union-find over dense integer indexes with path
// compression and union by rank. The analyzer assigns every feature
// node an index up front, so no growth is needed after construction.
type disjointSet struct {
	parent []int
	rank   []int8
}

func newDisjointSet(n int) *disjointSet {
	d := &disjointSet{
		parent: make([]int, n),
		rank:   make([]int8, n),
	}
	for i := range d.parent {
		d.parent[i] = i
	}
	return d
}

func (d *disjointSet) find(i int) int {
	for d.parent[i] != i {
		d.parent[i] = d.parent[d.parent[i]]
		i = d.parent[i]
	}
	return i
}

func (d *disjointSet) union(a, b int) {
	ra, rb := d.find(a), d.find(b)
	if ra == rb {
		return
	}
	if d.rank[ra] < d.rank[rb] {
		ra, rb = rb, ra
	}
	d.parent[rb] = ra
	if d.rank[ra] == d.rank[rb] {
		d.rank[ra]++
	}
}
