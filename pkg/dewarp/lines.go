package dewarp

import (
	"image"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/menta2k/page-rectifier/pkg/geometry"
	"github.com/menta2k/page-rectifier/pkg/vision"
)

// TextLine is a detected text line, sampled as one centroid per vertical
// strip, left to right.
type TextLine struct {
	Points []geometry.Point2D
}

// MeanY returns the average row of the line's samples.
func (l TextLine) MeanY() float64 {
	return geometry.Centroid(l.Points).Y
}

// DetectLines finds text lines in img and returns them in img's pixel
// coordinates, sorted top to bottom. Ink is separated from paper with Otsu,
// smeared so words merge into line blobs, and every wide, flat blob becomes
// a line.
func (d *Dewarper) DetectLines(img image.Image) []TextLine {
	full := vision.FromImage(img)
	g, scale := vision.Downscale(full, d.config.AnalysisMaxDim)
	if g.StdDev() < d.config.MinContrast {
		return nil
	}

	ink := vision.Threshold(g, vision.Otsu(g), false)
	if frac := float64(ink.Count()) / float64(g.W*g.H); frac > 0.5 {
		return nil
	}
	radius := g.W / 200
	if radius < 1 {
		radius = 1
	}
	smeared := vision.Dilate(ink, radius)

	strips := d.config.Strips
	if strips < 3 {
		strips = 3
	}
	stripW := float64(g.W) / float64(strips)
	minWidth := d.config.MinLineWidthRatio * float64(g.W)

	var lines []TextLine
	for _, c := range vision.Components(smeared, g.W/20) {
		bw, bh := c.Bounds.Dx(), c.Bounds.Dy()
		if float64(bw) < minWidth || bw < 4*bh {
			continue
		}

		sumX := make([]float64, strips)
		sumY := make([]float64, strips)
		count := make([]float64, strips)
		for _, p := range c.Points {
			s := int(float64(p.X) / stripW)
			if s >= strips {
				s = strips - 1
			}
			sumX[s] += float64(p.X)
			sumY[s] += float64(p.Y)
			count[s]++
		}

		var line TextLine
		for s := 0; s < strips; s++ {
			// Strips the blob barely touches give biased centroids.
			if count[s] < float64(bh) {
				continue
			}
			line.Points = append(line.Points, geometry.Pt(sumX[s]/count[s]*scale, sumY[s]/count[s]*scale))
		}
		if len(line.Points) >= d.config.MinPointsPerLine {
			lines = append(lines, line)
		}
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].MeanY() < lines[j].MeanY()
	})
	return lines
}

// BaselineAngles returns the angle, in degrees, of every segment between
// consecutive samples of every line.
func BaselineAngles(lines []TextLine) []float64 {
	var angles []float64
	for _, l := range lines {
		for i := 1; i < len(l.Points); i++ {
			angles = append(angles, geometry.SegmentAngle(l.Points[i-1], l.Points[i]))
		}
	}
	return angles
}

// AngleStdDev returns the standard deviation of the baseline angles.
func AngleStdDev(lines []TextLine) float64 {
	angles := BaselineAngles(lines)
	if len(angles) < 2 {
		return 0
	}
	sd := stat.StdDev(angles, nil)
	if math.IsNaN(sd) {
		return 0
	}
	return sd
}
