package social

import (
	"context"
	"hash/fnv"
	"math"

	"go.uber.org/zap"

	"sociogram/backend/internal/constants"
	apperrors "sociogram/backend/pkg/errors"
)

// LayoutConfig tunes the force-directed placement
type LayoutConfig struct {
	// Iterations bounds worst-case render latency deterministically
	Iterations int
	// Convergence stops early once no node moved further than this
	Convergence float64
	// Damping shrinks the per-iteration step limit to suppress oscillation
	Damping float64
	// IdealEdgeLength is the zero-force spring length
	IdealEdgeLength float64
	// Repulsion scales the pairwise inverse-square force
	Repulsion float64
	// Spring scales the per-edge attractive force
	Spring float64
	// MinDistance caps repulsion between nearly-overlapping nodes
	MinDistance float64
	// NegligibleWeight is the weight below which an edge does not count
	// toward cluster connectivity
	NegligibleWeight float64
	// MaxStep bounds how far a node may move in one iteration
	MaxStep float64
}

// DefaultLayoutConfig returns the stock layout tuning
func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{
		Iterations:       200,
		Convergence:      0.001,
		Damping:          constants.LayoutDamping,
		IdealEdgeLength:  constants.LayoutIdealEdgeLength,
		Repulsion:        constants.LayoutRepulsion,
		Spring:           constants.LayoutSpring,
		MinDistance:      constants.LayoutMinDistance,
		NegligibleWeight: constants.LayoutNegligibleWeight,
		MaxStep:          constants.LayoutMaxStep,
	}
}

// LayoutEngine computes 2D positions and cluster assignments from a snapshot.
// It reads only the immutable snapshot, so a layout pass can be cancelled at
// any point without touching the store.
type LayoutEngine struct {
	cfg    LayoutConfig
	logger *zap.Logger
}

// NewLayoutEngine creates a layout engine with the given tuning
func NewLayoutEngine(cfg LayoutConfig, logger *zap.Logger) *LayoutEngine {
	return &LayoutEngine{cfg: cfg, logger: logger}
}

// Layout places the snapshot's nodes, seeding from the previous layout (or the
// nodes' persisted positions) for visual stability. Non-convergence within the
// iteration budget is not an error; the best-effort positions are returned.
func (e *LayoutEngine) Layout(ctx context.Context, snap *Snapshot, previous *Layout) (*Layout, error) {
	result := &Layout{
		GuildID:   snap.GuildID,
		TakenAt:   snap.TakenAt,
		Positions: make(map[string]Position, len(snap.Nodes)),
		Clusters:  make(map[string]string, len(snap.Nodes)),
	}
	if len(snap.Nodes) == 0 {
		result.Converged = true
		return result, nil
	}

	n := len(snap.Nodes)
	index := make(map[string]int, n)
	for i, node := range snap.Nodes {
		index[node.UserID] = i
	}

	type adj struct {
		j      int
		weight float64
	}
	neighbors := make([][]adj, n)
	for _, edge := range snap.Edges {
		i, iok := index[edge.UserA]
		j, jok := index[edge.UserB]
		if !iok || !jok || i == j {
			continue
		}
		neighbors[i] = append(neighbors[i], adj{j: j, weight: edge.Weight})
		neighbors[j] = append(neighbors[j], adj{j: i, weight: edge.Weight})
	}

	pos := make([]Position, n)
	seeded := make([]bool, n)
	for i, node := range snap.Nodes {
		if previous != nil {
			if p, ok := previous.Positions[node.UserID]; ok {
				pos[i] = p
				seeded[i] = true
				continue
			}
		}
		if node.HasPos {
			pos[i] = Position{X: node.X, Y: node.Y}
			seeded[i] = true
		}
	}

	// Centroid of the seeded nodes, used as the fallback origin for newcomers.
	var centroid Position
	seededCount := 0
	for i := range pos {
		if seeded[i] {
			centroid.X += pos[i].X
			centroid.Y += pos[i].Y
			seededCount++
		}
	}
	if seededCount > 0 {
		centroid.X /= float64(seededCount)
		centroid.Y /= float64(seededCount)
	}

	// New nodes start near their seeded neighbors, or the graph centroid when
	// isolated, with deterministic jitter to avoid exact overlap.
	for i, node := range snap.Nodes {
		if seeded[i] {
			continue
		}
		var cx, cy float64
		count := 0
		for _, a := range neighbors[i] {
			if seeded[a.j] {
				cx += pos[a.j].X
				cy += pos[a.j].Y
				count++
			}
		}
		if count > 0 {
			cx /= float64(count)
			cy /= float64(count)
		} else {
			cx, cy = centroid.X, centroid.Y
		}
		jx, jy := jitter(node.UserID)
		pos[i] = Position{X: cx + jx, Y: cy + jy}
	}

	dispX := make([]float64, n)
	dispY := make([]float64, n)
	step := e.cfg.MaxStep
	iterations := 0
	converged := false

	for iter := 0; iter < e.cfg.Iterations; iter++ {
		select {
		case <-ctx.Done():
			return nil, apperrors.NewContextCancelled("layout", ctx.Err())
		default:
		}
		iterations = iter + 1

		for i := range dispX {
			dispX[i] = 0
			dispY[i] = 0
		}

		// Pairwise repulsion, inverse-square with a minimum-distance cap.
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				dx := pos[i].X - pos[j].X
				dy := pos[i].Y - pos[j].Y
				d := math.Hypot(dx, dy)
				if d < e.cfg.MinDistance {
					// Nearly coincident: push apart along a deterministic axis.
					d = e.cfg.MinDistance
					if dx == 0 && dy == 0 {
						dx = e.cfg.MinDistance
					}
				}
				f := e.cfg.Repulsion / (d * d)
				ux, uy := dx/d, dy/d
				dispX[i] += ux * f
				dispY[i] += uy * f
				dispX[j] -= ux * f
				dispY[j] -= uy * f
			}
		}

		// Spring attraction along edges, proportional to weight and to the
		// deviation from the ideal length.
		for i := 0; i < n; i++ {
			for _, a := range neighbors[i] {
				if a.j <= i {
					continue
				}
				dx := pos[a.j].X - pos[i].X
				dy := pos[a.j].Y - pos[i].Y
				d := math.Hypot(dx, dy)
				if d < e.cfg.MinDistance {
					continue
				}
				f := e.cfg.Spring * a.weight * (d - e.cfg.IdealEdgeLength)
				ux, uy := dx/d, dy/d
				dispX[i] += ux * f
				dispY[i] += uy * f
				dispX[a.j] -= ux * f
				dispY[a.j] -= uy * f
			}
		}

		maxDisp := 0.0
		for i := 0; i < n; i++ {
			d := math.Hypot(dispX[i], dispY[i])
			if d > step {
				scale := step / d
				dispX[i] *= scale
				dispY[i] *= scale
				d = step
			}
			pos[i].X += dispX[i]
			pos[i].Y += dispY[i]
			if d > maxDisp {
				maxDisp = d
			}
		}

		if maxDisp < e.cfg.Convergence {
			converged = true
			break
		}
		step = math.Max(step*e.cfg.Damping, e.cfg.Convergence)
	}

	normalize(pos)

	for i, node := range snap.Nodes {
		result.Positions[node.UserID] = pos[i]
	}
	result.Clusters = clusterIDs(snap, e.cfg.NegligibleWeight)
	result.Converged = converged
	result.Iterations = iterations

	if !converged {
		e.logger.Debug("layout did not converge within iteration budget",
			zap.String("guild_id", snap.GuildID),
			zap.Int("iterations", iterations),
		)
	}

	return result, nil
}

// normalize centers positions on their centroid and scales the extent into
// [-1, 1] so the renderer can map directly to pixel space
func normalize(pos []Position) {
	if len(pos) == 0 {
		return
	}
	var cx, cy float64
	for _, p := range pos {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(pos))
	cy /= float64(len(pos))

	maxAbs := 0.0
	for i := range pos {
		pos[i].X -= cx
		pos[i].Y -= cy
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(pos[i].X), math.Abs(pos[i].Y)))
	}
	if maxAbs == 0 {
		return
	}
	for i := range pos {
		pos[i].X /= maxAbs
		pos[i].Y /= maxAbs
	}
}

// clusterIDs groups nodes into connected components, ignoring edges below the
// negligible-weight threshold. A component's id is its smallest member's user
// id, so an unchanged component keeps its id across renders.
func clusterIDs(snap *Snapshot, negligible float64) map[string]string {
	parent := make(map[string]string, len(snap.Nodes))
	for _, node := range snap.Nodes {
		parent[node.UserID] = node.UserID
	}

	var find func(string) string
	find = func(id string) string {
		if parent[id] != id {
			parent[id] = find(parent[id])
		}
		return parent[id]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		// Keep the smaller id as the root so ids stay stable.
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	for _, edge := range snap.Edges {
		if edge.Weight < negligible {
			continue
		}
		if _, ok := parent[edge.UserA]; !ok {
			continue
		}
		if _, ok := parent[edge.UserB]; !ok {
			continue
		}
		union(edge.UserA, edge.UserB)
	}

	clusters := make(map[string]string, len(snap.Nodes))
	for _, node := range snap.Nodes {
		clusters[node.UserID] = find(node.UserID)
	}
	return clusters
}

// jitter derives a small deterministic offset from the user id, keeping
// layout runs reproducible
func jitter(userID string) (float64, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(userID))
	sum := h.Sum64()

	angle := float64(sum%3600) / 3600 * 2 * math.Pi
	radius := 0.02 + float64((sum>>16)%1000)/1000*0.05
	return radius * math.Cos(angle), radius * math.Sin(angle)
}
