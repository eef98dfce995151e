package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/pattern"
	"github.com/mewdb/mew/pkg/pool"
	"github.com/mewdb/mew/pkg/registry"
	"github.com/mewdb/mew/pkg/values"
)

// walkDefaultPathCap bounds PATH result explosion when the statement
// carries no LIMIT.
const walkDefaultPathCap = 1000

// walkState carries one frontier entry: the node reached and the path of
// alternating node/edge glyphs that reached it.
type walkState struct {
	node values.GlyphId
	path []values.GlyphId
}

// Walk executes a WALK statement from the given resolved start glyphs.
// Each FOLLOW step's breadth-first output feeds the next step; UNTIL
// matches are included and then terminate their branch; NODES/EDGES/
// TERMINAL results are deduplicated, PATH returns each discovered path up
// to a cap.
func (e *Engine) Walk(ctx context.Context, stmt ast.WalkStmt, starts []values.GlyphId) (*Result, error) {
	began := time.Now()
	ev := pattern.NewEvaluator(ctx, e.G, e.Cfg)

	frontier := make([]walkState, 0, len(starts))
	seenStart := map[values.GlyphId]bool{}
	for _, s := range starts {
		if !e.G.Alive(s) {
			return nil, mewerr.NotFound("glyph", s.String())
		}
		if !seenStart[s] {
			seenStart[s] = true
			frontier = append(frontier, walkState{node: s, path: []values.GlyphId{s}})
		}
	}

	var (
		visitedNodes []values.GlyphId
		visitedEdges []values.GlyphId
		terminal     []values.GlyphId
		paths        [][]values.GlyphId
	)
	nodeSeen := map[values.GlyphId]bool{}
	edgeSeen := map[values.GlyphId]bool{}
	termSeen := map[values.GlyphId]bool{}
	pathCap := stmt.PathCap
	if pathCap <= 0 {
		pathCap = walkDefaultPathCap
	}

	noteNode := func(n values.GlyphId) {
		if !nodeSeen[n] {
			nodeSeen[n] = true
			visitedNodes = append(visitedNodes, n)
		}
	}
	noteTerminal := func(n values.GlyphId) {
		if !termSeen[n] {
			termSeen[n] = true
			terminal = append(terminal, n)
		}
	}

	until := func(n values.GlyphId) (bool, error) {
		if stmt.Until == nil {
			return false, nil
		}
		b := pool.GetBindings()
		defer pool.PutBindings(b)
		b["node"] = values.NewID(n)
		v, err := ev.Eval(stmt.Until, b)
		if err != nil {
			return false, err
		}
		return v.Kind() == values.KindBool && v.AsBool(), nil
	}

	for _, st := range frontier {
		noteNode(st.node)
	}

	for _, step := range stmt.Follow {
		def, ok := e.G.Registry().EdgeTypeByName(step.EdgeType)
		if !ok {
			return nil, mewerr.NotFound("edge type", step.EdgeType)
		}
		minDepth, maxDepth := step.MinDepth, step.MaxDepth
		if maxDepth <= 0 {
			maxDepth = e.Cfg.DefaultTransitiveDepth
		}
		if minDepth <= 0 {
			minDepth = 1
		}
		if e.Cfg.MaxTransitiveDepth > 0 && maxDepth > e.Cfg.MaxTransitiveDepth {
			return nil, mewerr.DepthLimitExceeded(e.Cfg.MaxTransitiveDepth)
		}

		var next []walkState
		stepSeen := map[values.GlyphId]bool{}
		type item struct {
			walkState
			depth int
		}
		queue := make([]item, 0, len(frontier))
		for _, st := range frontier {
			queue = append(queue, item{st, 0})
			stepSeen[st.node] = true
		}
		for len(queue) > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			cur := queue[0]
			queue = queue[1:]
			if cur.depth >= maxDepth {
				noteTerminal(cur.node)
				continue
			}
			hops := e.directedHops(cur.node, def, step.Direction)
			if len(hops) == 0 {
				noteTerminal(cur.node)
				continue
			}
			for _, h := range hops {
				if !edgeSeen[h.edge] {
					edgeSeen[h.edge] = true
					visitedEdges = append(visitedEdges, h.edge)
				}
				depth := cur.depth + 1
				ns := walkState{node: h.next, path: appendPath(cur.path, h.edge, h.next)}
				noteNode(h.next)
				stop, err := until(h.next)
				if err != nil {
					return nil, err
				}
				if depth >= minDepth {
					next = append(next, ns)
					if len(paths) < pathCap {
						paths = append(paths, ns.path)
					}
				}
				if stop {
					noteTerminal(h.next)
					continue
				}
				if !stepSeen[h.next] {
					stepSeen[h.next] = true
					queue = append(queue, item{ns, depth})
				}
			}
		}
		frontier = next
	}

	res := &Result{}
	switch stmt.Return {
	case ast.WalkReturnNodes:
		res.Columns = []string{"node"}
		for _, n := range visitedNodes {
			res.Rows = append(res.Rows, pool.Row{values.NewID(n)})
		}
	case ast.WalkReturnEdges:
		res.Columns = []string{"edge"}
		for _, n := range visitedEdges {
			res.Rows = append(res.Rows, pool.Row{values.NewID(n)})
		}
	case ast.WalkReturnTerminal:
		res.Columns = []string{"terminal"}
		for _, n := range terminal {
			res.Rows = append(res.Rows, pool.Row{values.NewID(n)})
		}
	case ast.WalkReturnPath:
		res.Columns = []string{"path"}
		for _, p := range paths {
			res.Rows = append(res.Rows, pool.Row{values.NewString(pathString(p))})
		}
		if len(paths) == pathCap {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("path results truncated at %d; raise the WALK LIMIT", pathCap))
		}
	}
	res.Stats = Stats{MatchCount: len(visitedNodes), ReturnCount: len(res.Rows), ExecutionTime: time.Since(began)}
	return res, nil
}

type hop struct {
	edge values.GlyphId
	next values.GlyphId
}

// directedHops enumerates the (edge, neighbor) pairs reachable from n over
// one edge type in the requested direction. Outgoing reads position 0 →
// position 1; incoming the reverse; symmetric edge types traverse both
// regardless (their storage order is canonical, not directional).
func (e *Engine) directedHops(n values.GlyphId, def *registry.EdgeTypeDef, dir ast.WalkDirection) []hop {
	var out []hop
	for _, edge := range e.G.Neighbors(n, def.ID) {
		targets, err := e.G.Targets(edge)
		if err != nil || len(targets) < 2 {
			continue
		}
		forward := targets[0] == n
		backward := targets[len(targets)-1] == n
		switch {
		case def.Symmetric:
			for _, t := range targets {
				if t != n {
					out = append(out, hop{edge, t})
				}
			}
		case dir == ast.WalkOutgoing && forward:
			out = append(out, hop{edge, targets[len(targets)-1]})
		case dir == ast.WalkIncoming && backward:
			out = append(out, hop{edge, targets[0]})
		case dir == ast.WalkBoth:
			if forward {
				out = append(out, hop{edge, targets[len(targets)-1]})
			} else if backward {
				out = append(out, hop{edge, targets[0]})
			}
		}
	}
	return out
}

func appendPath(path []values.GlyphId, edge, node values.GlyphId) []values.GlyphId {
	out := make([]values.GlyphId, 0, len(path)+2)
	out = append(out, path...)
	out = append(out, edge, node)
	return out
}

func pathString(p []values.GlyphId) string {
	parts := make([]string, len(p))
	for i, g := range p {
		parts[i] = g.String()
	}
	return strings.Join(parts, " -> ")
}
