package zk

import (
	"fmt"
	"sort"
)

// Catalog is an immutable, read-only registry of circuits. Build one with
// NewCatalog; lookups after construction are lock-free.
type Catalog struct {
	byID map[uint32]*Circuit
	ids  []uint32
}

// NewCatalog builds a catalog from the given circuits. Duplicate IDs are an
// error so misconfiguration fails at startup rather than at selection time.
func NewCatalog(circuits []Circuit) (*Catalog, error) {
	byID := make(map[uint32]*Circuit, len(circuits))
	ids := make([]uint32, 0, len(circuits))
	for i := range circuits {
		c := circuits[i]
		if _, ok := byID[c.ID]; ok {
			return nil, fmt.Errorf("duplicate circuit id %d", c.ID)
		}
		byID[c.ID] = &c
		ids = append(ids, c.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return &Catalog{byID: byID, ids: ids}, nil
}

// DefaultCatalog returns the standard three-tier catalog: small, medium and
// large aggregation circuits.
func DefaultCatalog() *Catalog {
	catalog, err := NewCatalog([]Circuit{
		{ID: 1, MaxDataPoints: 10, MaxDataSources: 5, Description: "small aggregation (up to 10 data points, 5 sources)"},
		{ID: 2, MaxDataPoints: 50, MaxDataSources: 20, Description: "medium aggregation (up to 50 data points, 20 sources)"},
		{ID: 3, MaxDataPoints: 200, MaxDataSources: 100, Description: "large aggregation (up to 200 data points, 100 sources)"},
	})
	if err != nil {
		panic(err) // static table, cannot fail
	}
	return catalog
}

// Get returns the circuit with the given ID.
func (c *Catalog) Get(id uint32) (*Circuit, error) {
	circuit, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: circuit %d not registered", ErrUnsupportedCircuit, id)
	}
	return circuit, nil
}

// List returns all circuits ordered by ID.
func (c *Catalog) List() []*Circuit {
	out := make([]*Circuit, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.byID[id])
	}
	return out
}

// Select picks the cheapest circuit that fits the submission shape, by
// estimated generation time. Ties break toward the smallest circuit ID, so
// selection is deterministic.
func (c *Catalog) Select(dataPoints, sources int) (*Circuit, error) {
	var best *Circuit
	bestCost := 0
	for _, id := range c.ids {
		circuit := c.byID[id]
		if !circuit.Fits(dataPoints, sources) {
			continue
		}
		cost := circuit.EstimateComplexity(dataPoints, sources).EstimatedGenerationMs
		if best == nil || cost < bestCost {
			best = circuit
			bestCost = cost
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no circuit fits %d data points across %d sources", ErrUnsupportedCircuit, dataPoints, sources)
	}
	return best, nil
}
