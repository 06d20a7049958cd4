package vision

import (
	"math"
)

// Mask is a binary image.
type Mask struct {
	W, H int
	Pix  []bool
}

// NewMask allocates an empty w x h mask.
func NewMask(w, h int) *Mask {
	return &Mask{W: w, H: h, Pix: make([]bool, w*h)}
}

// Get reports whether (x, y) is set; out-of-range coordinates are unset.
func (m *Mask) Get(x, y int) bool {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return false
	}
	return m.Pix[y*m.W+x]
}

// Count returns the number of set pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// Gradient holds per-pixel Sobel responses.
type Gradient struct {
	W, H   int
	GX, GY []float64
	Mag    []float64
}

// Sobel computes 3x3 Sobel derivatives and their L2 magnitude.
func Sobel(g *Gray) *Gradient {
	n := g.W * g.H
	grad := &Gradient{W: g.W, H: g.H, GX: make([]float64, n), GY: make([]float64, n), Mag: make([]float64, n)}
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			tl, tc, tr := g.At(x-1, y-1), g.At(x, y-1), g.At(x+1, y-1)
			ml, mr := g.At(x-1, y), g.At(x+1, y)
			bl, bc, br := g.At(x-1, y+1), g.At(x, y+1), g.At(x+1, y+1)
			gx := (tr + 2*mr + br) - (tl + 2*ml + bl)
			gy := (bl + 2*bc + br) - (tl + 2*tc + tr)
			i := y*g.W + x
			grad.GX[i] = gx
			grad.GY[i] = gy
			grad.Mag[i] = math.Hypot(gx, gy)
		}
	}
	return grad
}

// MeanMagnitude returns the average gradient magnitude, a cheap sharpness proxy.
func (gr *Gradient) MeanMagnitude() float64 {
	if len(gr.Mag) == 0 {
		return 0
	}
	var sum float64
	for _, v := range gr.Mag {
		sum += v
	}
	return sum / float64(len(gr.Mag))
}

// Canny runs non-maximum suppression and hysteresis thresholding on the Sobel
// gradient of g. low and high are gradient-magnitude thresholds on the same
// scale as OpenCV's Canny with an unnormalized 3x3 Sobel.
func Canny(g *Gray, low, high float64) *Mask {
	grad := Sobel(g)
	w, h := g.W, g.H
	thin := make([]float64, w*h)

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := grad.Mag[i]
			if m < low {
				continue
			}
			var n1, n2 float64
			angle := math.Atan2(grad.GY[i], grad.GX[i]) * 180 / math.Pi
			if angle < 0 {
				angle += 180
			}
			switch {
			case angle < 22.5 || angle >= 157.5:
				n1, n2 = grad.Mag[i-1], grad.Mag[i+1]
			case angle < 67.5:
				n1, n2 = grad.Mag[i-w-1], grad.Mag[i+w+1]
			case angle < 112.5:
				n1, n2 = grad.Mag[i-w], grad.Mag[i+w]
			default:
				n1, n2 = grad.Mag[i-w+1], grad.Mag[i+w-1]
			}
			if m >= n1 && m >= n2 {
				thin[i] = m
			}
		}
	}

	edges := NewMask(w, h)
	stack := make([]int, 0, 1024)
	for i, m := range thin {
		if m >= high && !edges.Pix[i] {
			edges.Pix[i] = true
			stack = append(stack, i)
			for len(stack) > 0 {
				cur := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				cx, cy := cur%w, cur/w
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := cx+dx, cy+dy
						if nx < 0 || ny < 0 || nx >= w || ny >= h {
							continue
						}
						j := ny*w + nx
						if !edges.Pix[j] && thin[j] >= low {
							edges.Pix[j] = true
							stack = append(stack, j)
						}
					}
				}
			}
		}
	}
	return edges
}

// Dilate grows every set pixel into a (2r+1) x (2r+1) square.
func Dilate(m *Mask, r int) *Mask {
	if r <= 0 {
		out := NewMask(m.W, m.H)
		copy(out.Pix, m.Pix)
		return out
	}
	// Separable: horizontal pass then vertical pass.
	tmp := NewMask(m.W, m.H)
	for y := 0; y < m.H; y++ {
		last := -r - 1
		for x := 0; x < m.W+r; x++ {
			if x < m.W && m.Pix[y*m.W+x] {
				last = x
			}
			tx := x - r
			if tx >= 0 && tx < m.W && x-last <= 2*r {
				tmp.Pix[y*m.W+tx] = true
			}
		}
	}
	out := NewMask(m.W, m.H)
	for x := 0; x < m.W; x++ {
		last := -r - 1
		for y := 0; y < m.H+r; y++ {
			if y < m.H && tmp.Pix[y*m.W+x] {
				last = y
			}
			ty := y - r
			if ty >= 0 && ty < m.H && y-last <= 2*r {
				out.Pix[ty*m.W+x] = true
			}
		}
	}
	return out
}

// Otsu returns the threshold that maximizes between-class variance of g's
// 256-bin histogram.
func Otsu(g *Gray) float64 {
	var hist [256]float64
	for _, v := range g.Pix {
		hist[clampByte(v)]++
	}
	total := float64(len(g.Pix))
	if total == 0 {
		return 128
	}
	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i) * c
	}

	var sumB, wB, best float64
	threshold := 128.0
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * hist[t]
		mB := sumB / wB
		mF := (sumAll - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = float64(t)
		}
	}
	return threshold
}

// Threshold returns a mask of pixels above (bright=true) or at/below
// (bright=false) the threshold.
func Threshold(g *Gray, t float64, bright bool) *Mask {
	m := NewMask(g.W, g.H)
	for i, v := range g.Pix {
		if bright {
			m.Pix[i] = v > t
		} else {
			m.Pix[i] = v <= t
		}
	}
	return m
}
