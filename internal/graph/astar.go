package graph

import (
	"container/heap"
	"context"
	"fmt"
	"math"

	"galos/internal/galaxy"
	"galos/internal/logger"
	"galos/internal/metrics"
)

// Heuristic estimates the remaining cost from s to end.
type Heuristic func(s, end galaxy.System) float64

// JumpHeuristic is ceil(dist/R): no hop covers more than R, so it never
// overestimates the remaining jump count.
func JumpHeuristic(jumpRange float64) Heuristic {
	return func(s, end galaxy.System) float64 {
		return math.Ceil(s.Distance(end) / jumpRange)
	}
}

// InflatedHeuristic scales JumpHeuristic by weight. With weight > 1 routes are
// found faster but may be longer than optimal.
func InflatedHeuristic(jumpRange, weight float64) Heuristic {
	h := JumpHeuristic(jumpRange)
	return func(s, end galaxy.System) float64 {
		return weight * h(s, end)
	}
}

// ZeroHeuristic turns the search into Dijkstra's algorithm.
func ZeroHeuristic(s, end galaxy.System) float64 {
	return 0
}

// Route is a found path. Systems runs from start to end inclusive.
type Route struct {
	Systems  []galaxy.System `json:"systems"`
	Cost     float64         `json:"cost"`
	Expanded int             `json:"expanded"`
}

// Jumps returns the number of hops in the route.
func (r *Route) Jumps() int {
	if r == nil || len(r.Systems) == 0 {
		return 0
	}
	return len(r.Systems) - 1
}

// Hop is one leg of a route.
type Hop struct {
	From     galaxy.System `json:"from"`
	To       galaxy.System `json:"to"`
	Distance float64       `json:"distance"`
}

// Hops returns the consecutive legs of the route.
func (r *Route) Hops() []Hop {
	if r.Jumps() == 0 {
		return nil
	}
	hops := make([]Hop, 0, r.Jumps())
	for i := 1; i < len(r.Systems); i++ {
		from, to := r.Systems[i-1], r.Systems[i]
		hops = append(hops, Hop{From: from, To: to, Distance: from.Distance(to)})
	}
	return hops
}

// Planner runs A* over the implicit graph produced by an Expander. A Planner
// holds no per-request state and is safe for concurrent use.
type Planner struct {
	exp         Expander
	heuristic   Heuristic
	maxExpanded int
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithMaxExpanded caps the systems a single search expands; 0 means no cap.
func WithMaxExpanded(n int) PlannerOption {
	return func(p *Planner) { p.maxExpanded = n }
}

// WithHeuristic overrides the heuristic.
func WithHeuristic(h Heuristic) PlannerOption {
	return func(p *Planner) { p.heuristic = h }
}

// NewPlanner returns a planner over exp. The heuristic defaults to the one the
// expander advertises, or ZeroHeuristic.
func NewPlanner(exp Expander, opts ...PlannerOption) *Planner {
	p := &Planner{exp: exp, heuristic: ZeroHeuristic}
	if hp, ok := exp.(interface{ Heuristic() Heuristic }); ok {
		p.heuristic = hp.Heuristic()
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Route finds a cheapest path from start to end. It returns a nil route and a
// nil error when no path exists or the expansion cap is hit. Errors come only
// from the expander or from ctx.
func (p *Planner) Route(ctx context.Context, start, end galaxy.System) (*Route, error) {
	if start.Address == end.Address {
		metrics.RoutesPlanned.WithLabelValues("found").Inc()
		return &Route{Systems: []galaxy.System{start}}, nil
	}

	var (
		open   priorityQueue
		seq    int
		g      = map[uint64]float64{start.Address: 0}
		prev   = map[uint64]uint64{}
		known  = map[uint64]galaxy.System{start.Address: start}
		closed = map[uint64]bool{}
	)
	push := func(s galaxy.System, cost float64) {
		h := p.heuristic(s, end)
		heap.Push(&open, pqItem{address: s.Address, g: cost, h: h, f: cost + h, seq: seq})
		seq++
	}
	push(start, 0)

	expanded := 0
	for open.Len() > 0 {
		if err := ctx.Err(); err != nil {
			metrics.RoutesPlanned.WithLabelValues("error").Inc()
			return nil, err
		}
		item := heap.Pop(&open).(pqItem)
		if closed[item.address] || item.g > g[item.address] {
			continue
		}
		if item.address == end.Address {
			r := &Route{Systems: path(prev, known, end.Address), Cost: item.g, Expanded: expanded}
			metrics.RoutesPlanned.WithLabelValues("found").Inc()
			metrics.RouteExpanded.Observe(float64(expanded))
			return r, nil
		}
		if p.maxExpanded > 0 && expanded >= p.maxExpanded {
			logger.Warn("Route", fmt.Sprintf("Gave up after expanding %d systems (%s -> %s)", expanded, start.Name, end.Name))
			metrics.RoutesPlanned.WithLabelValues("capped").Inc()
			metrics.RouteExpanded.Observe(float64(expanded))
			return nil, nil
		}
		closed[item.address] = true
		expanded++

		neighbors, err := p.exp.Neighbors(ctx, known[item.address])
		if err != nil {
			metrics.RoutesPlanned.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("expand %d: %w", item.address, err)
		}
		for _, n := range neighbors {
			addr := n.System.Address
			if closed[addr] {
				continue
			}
			cost := item.g + n.Cost
			if old, ok := g[addr]; ok && cost >= old {
				continue
			}
			g[addr] = cost
			prev[addr] = item.address
			known[addr] = n.System
			push(n.System, cost)
		}
	}

	metrics.RoutesPlanned.WithLabelValues("none").Inc()
	metrics.RouteExpanded.Observe(float64(expanded))
	return nil, nil
}

func path(prev map[uint64]uint64, known map[uint64]galaxy.System, end uint64) []galaxy.System {
	var rev []galaxy.System
	for addr := end; ; {
		rev = append(rev, known[addr])
		p, ok := prev[addr]
		if !ok {
			break
		}
		addr = p
	}
	out := make([]galaxy.System, len(rev))
	for i, s := range rev {
		out[len(rev)-1-i] = s
	}
	return out
}

// Priority queue for A*: lowest f first, then lowest h, then insertion order.
type pqItem struct {
	address uint64
	g, h, f float64
	seq     int
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].f != pq[j].f {
		return pq[i].f < pq[j].f
	}
	if pq[i].h != pq[j].h {
		return pq[i].h < pq[j].h
	}
	return pq[i].seq < pq[j].seq
}
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}
