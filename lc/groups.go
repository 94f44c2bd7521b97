package lc

import "sort"

// Registration pairs a managed service with its level.
type Registration struct {
	Service ManagedService
	Level   Level
}

// Groups is an immutable snapshot of services partitioned by level.
// Within a level, services keep the order they were registered in.
type Groups struct {
	levels  []Level
	byLevel map[Level][]ManagedService
}

// Group partitions registrations by level. It performs no validation; an empty
// input yields an empty grouping.
func Group(regs []Registration) *Groups {
	g := &Groups{byLevel: make(map[Level][]ManagedService)}
	for _, reg := range regs {
		if _, ok := g.byLevel[reg.Level]; !ok {
			g.levels = append(g.levels, reg.Level)
		}
		g.byLevel[reg.Level] = append(g.byLevel[reg.Level], reg.Service)
	}
	sort.Slice(g.levels, func(i, j int) bool {
		return g.levels[i] < g.levels[j]
	})
	return g
}

// Levels returns the distinct levels in ascending order.
func (g *Groups) Levels() []Level {
	if g == nil {
		return nil
	}
	return append([]Level(nil), g.levels...)
}

// Services returns the services registered at level in registration order.
func (g *Groups) Services(level Level) []ManagedService {
	if g == nil {
		return nil
	}
	return append([]ManagedService(nil), g.byLevel[level]...)
}

// Len returns the total number of services across all levels.
func (g *Groups) Len() int {
	if g == nil {
		return 0
	}
	n := 0
	for _, services := range g.byLevel {
		n += len(services)
	}
	return n
}

func (g *Groups) descending() []Level {
	levels := g.Levels()
	for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
		levels[i], levels[j] = levels[j], levels[i]
	}
	return levels
}
