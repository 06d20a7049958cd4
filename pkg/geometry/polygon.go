package geometry

import (
	"math"
	"sort"
)

// ConvexHull computes the convex hull of a set of points (monotone chain).
// Returns the hull in counter-clockwise order (y axis pointing down, so the
// order looks clockwise on screen) without repeating the first point.
func ConvexHull(points []Point2D) []Point2D {
	if len(points) < 3 {
		out := make([]Point2D, len(points))
		copy(out, points)
		return out
	}

	pts := make([]Point2D, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})

	hull := make([]Point2D, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && Cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && Cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// PolygonArea returns the unsigned area of a simple polygon (shoelace formula).
func PolygonArea(polygon []Point2D) float64 {
	return math.Abs(signedArea(polygon))
}

func signedArea(polygon []Point2D) float64 {
	n := len(polygon)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += polygon[i].X*polygon[j].Y - polygon[j].X*polygon[i].Y
	}
	return sum / 2
}

// Perimeter returns the length of the closed polygon outline.
func Perimeter(polygon []Point2D) float64 {
	n := len(polygon)
	if n < 2 {
		return 0
	}
	var total float64
	for i := 0; i < n; i++ {
		total += polygon[i].Distance(polygon[(i+1)%n])
	}
	return total
}

// IsConvex returns true if the polygon vertices form a convex polygon.
func IsConvex(polygon []Point2D) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}
	var sign int
	for i := 0; i < n; i++ {
		cross := Cross(polygon[i], polygon[(i+1)%n], polygon[(i+2)%n])
		if cross == 0 {
			continue
		}
		current := 1
		if cross < 0 {
			current = -1
		}
		if sign == 0 {
			sign = current
		} else if current != sign {
			return false
		}
	}
	return sign != 0
}

// IsSimpleQuad reports whether the four points, taken in order, form a
// quadrilateral whose opposite edges do not cross.
func IsSimpleQuad(quad []Point2D) bool {
	if len(quad) != 4 {
		return false
	}
	if segmentsIntersect(quad[0], quad[1], quad[2], quad[3]) {
		return false
	}
	if segmentsIntersect(quad[1], quad[2], quad[3], quad[0]) {
		return false
	}
	return PolygonArea(quad) > 0
}

func segmentsIntersect(p1, p2, p3, p4 Point2D) bool {
	d1 := Cross(p3, p4, p1)
	d2 := Cross(p3, p4, p2)
	d3 := Cross(p1, p2, p3)
	d4 := Cross(p1, p2, p4)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

// MinTurnRatio returns the smallest |sin| of the interior angle over all
// vertices. Values near zero mean three consecutive corners are collinear.
func MinTurnRatio(polygon []Point2D) float64 {
	n := len(polygon)
	if n < 3 {
		return 0
	}
	minRatio := math.Inf(1)
	for i := 0; i < n; i++ {
		prev := polygon[(i+n-1)%n]
		cur := polygon[i]
		next := polygon[(i+1)%n]
		a := prev.Distance(cur)
		b := cur.Distance(next)
		if a == 0 || b == 0 {
			return 0
		}
		r := math.Abs(Cross(cur, prev, next)) / (a * b)
		if r < minRatio {
			minRatio = r
		}
	}
	return minRatio
}

// OrderCorners orders four corner points canonically: TL, TR, BR, BL.
// Points are sorted by angle around their centroid, which is independent of
// the input order, then rotated so the corner with the smallest x+y leads.
func OrderCorners(corners []Point2D) []Point2D {
	if len(corners) != 4 {
		return corners
	}
	c := Centroid(corners)
	sorted := make([]Point2D, 4)
	copy(sorted, corners)
	sort.SliceStable(sorted, func(i, j int) bool {
		ai := math.Atan2(sorted[i].Y-c.Y, sorted[i].X-c.X)
		aj := math.Atan2(sorted[j].Y-c.Y, sorted[j].X-c.X)
		return ai < aj
	})

	start := 0
	for i := 1; i < 4; i++ {
		si := sorted[i].X + sorted[i].Y
		ss := sorted[start].X + sorted[start].Y
		if si < ss || (si == ss && sorted[i].X < sorted[start].X) {
			start = i
		}
	}

	// With y pointing down, increasing atan2 runs clockwise on screen:
	// TL -> TR -> BR -> BL.
	out := make([]Point2D, 4)
	for i := 0; i < 4; i++ {
		out[i] = sorted[(start+i)%4]
	}
	return out
}

// SimplifyClosed approximates a closed polygon with fewer vertices using the
// Douglas-Peucker algorithm. epsilon is the maximum allowed distance between
// the original outline and the simplified one.
func SimplifyClosed(polygon []Point2D, epsilon float64) []Point2D {
	n := len(polygon)
	if n < 4 {
		out := make([]Point2D, n)
		copy(out, polygon)
		return out
	}

	// Split the ring at the two mutually farthest vertices (approximated by
	// the farthest from vertex 0, then the farthest from that one).
	a := farthestFrom(polygon, polygon[0])
	b := farthestFrom(polygon, polygon[a])
	if a > b {
		a, b = b, a
	}
	if a == b {
		return []Point2D{polygon[a]}
	}

	first := make([]Point2D, 0, b-a+1)
	first = append(first, polygon[a:b+1]...)
	second := make([]Point2D, 0, n-b+a+1)
	second = append(second, polygon[b:]...)
	second = append(second, polygon[:a+1]...)

	s1 := simplifyOpen(first, epsilon)
	s2 := simplifyOpen(second, epsilon)

	out := make([]Point2D, 0, len(s1)+len(s2))
	out = append(out, s1[:len(s1)-1]...)
	out = append(out, s2[:len(s2)-1]...)
	return out
}

func farthestFrom(points []Point2D, ref Point2D) int {
	best, bestDist := 0, -1.0
	for i, p := range points {
		if d := p.Distance(ref); d > bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func simplifyOpen(points []Point2D, epsilon float64) []Point2D {
	if len(points) < 3 {
		return points
	}
	start, end := points[0], points[len(points)-1]
	maxDist, index := -1.0, 0
	for i := 1; i < len(points)-1; i++ {
		if d := pointSegmentDistance(points[i], start, end); d > maxDist {
			maxDist, index = d, i
		}
	}
	if maxDist <= epsilon {
		return []Point2D{start, end}
	}
	left := simplifyOpen(points[:index+1], epsilon)
	right := simplifyOpen(points[index:], epsilon)
	out := make([]Point2D, 0, len(left)+len(right)-1)
	out = append(out, left[:len(left)-1]...)
	out = append(out, right...)
	return out
}

func pointSegmentDistance(p, a, b Point2D) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return p.Distance(a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return p.Distance(Point2D{X: a.X + t*dx, Y: a.Y + t*dy})
}
