package vision

import (
	"image"
)

// Component is one 8-connected region of a mask.
type Component struct {
	Points []image.Point
	Bounds image.Rectangle
}

// Size returns the number of pixels in the component.
func (c Component) Size() int {
	return len(c.Points)
}

// Components labels the 8-connected regions of m in raster order. Regions
// smaller than minSize pixels are dropped.
func Components(m *Mask, minSize int) []Component {
	w, h := m.W, m.H
	visited := make([]bool, w*h)
	var out []Component
	stack := make([]int, 0, 1024)

	for start, set := range m.Pix {
		if !set || visited[start] {
			continue
		}
		visited[start] = true
		stack = append(stack[:0], start)
		comp := Component{Bounds: image.Rect(start%w, start/w, start%w+1, start/w+1)}

		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			cx, cy := cur%w, cur/w
			comp.Points = append(comp.Points, image.Pt(cx, cy))
			if cx < comp.Bounds.Min.X {
				comp.Bounds.Min.X = cx
			}
			if cx+1 > comp.Bounds.Max.X {
				comp.Bounds.Max.X = cx + 1
			}
			if cy < comp.Bounds.Min.Y {
				comp.Bounds.Min.Y = cy
			}
			if cy+1 > comp.Bounds.Max.Y {
				comp.Bounds.Max.Y = cy + 1
			}

			for dy := -1; dy <= 1; dy++ {
				ny := cy + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := cx + dx
					if nx < 0 || nx >= w {
						continue
					}
					j := ny*w + nx
					if m.Pix[j] && !visited[j] {
						visited[j] = true
						stack = append(stack, j)
					}
				}
			}
		}

		if comp.Size() >= minSize {
			out = append(out, comp)
		}
	}
	return out
}
