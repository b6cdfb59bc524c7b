// Package geometry picks the detection closest to the middle of the viewport.
package geometry

import (
	"math"

	"github.com/chiliwax/QrCodeReader-v2/pkg/types"
)

// DistanceFromCenter is the Euclidean distance between the centre of d's
// bounds and the viewport centre. Detections without an origin are +Inf so
// they never beat a bounded one. A missing size counts as zero.
func DistanceFromCenter(d types.Detection, vp types.Viewport) float64 {
	if d.Bounds == nil || d.Bounds.Origin == nil {
		return math.Inf(1)
	}
	cx := d.Bounds.Origin.X + d.Bounds.Size.Width/2
	cy := d.Bounds.Origin.Y + d.Bounds.Size.Height/2
	c := vp.Center()
	return math.Hypot(cx-c.X, cy-c.Y)
}

// MostCentered returns the detection with the smallest distance from the
// viewport centre. Equal distances keep the earlier element. ok is false for
// empty input.
func MostCentered(ds []types.Detection, vp types.Viewport) (best types.Detection, ok bool) {
	if len(ds) == 0 {
		return types.Detection{}, false
	}
	best = ds[0]
	bestDist := DistanceFromCenter(best, vp)
	for _, d := range ds[1:] {
		if dist := DistanceFromCenter(d, vp); dist < bestDist {
			best, bestDist = d, dist
		}
	}
	return best, true
}
