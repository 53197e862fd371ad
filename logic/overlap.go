package logic

import (
	"math"
)

// CircleAABB checks overlap between a pawn circle and a region footprint.
// A zero radius degrades to a point containment test.
func CircleAABB(c Vector2, r float64, b Bounds) bool {
	if r <= 0 {
		return b.Contains(c)
	}
	// Find closest point on AABB to Circle center
	closestX := math.Max(b.Min.X, math.Min(c.X, b.Max.X))
	closestY := math.Max(b.Min.Y, math.Min(c.Y, b.Max.Y))

	distanceX := c.X - closestX
	distanceY := c.Y - closestY

	return (distanceX*distanceX + distanceY*distanceY) < (r * r)
}
