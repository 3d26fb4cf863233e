package motion

import "image"

// component is one connected foreground region of a binary mask.
type component struct {
	area int
	bbox image.Rectangle
	sumX int64
	sumY int64
}

// centroid returns the first-order-moment centroid. A degenerate zero-area
// component falls back to the bounding-box center.
func (c component) centroid() image.Point {
	if c.area == 0 {
		return image.Point{
			X: (c.bbox.Min.X + c.bbox.Max.X) / 2,
			Y: (c.bbox.Min.Y + c.bbox.Max.Y) / 2,
		}
	}
	return image.Point{
		X: int(c.sumX / int64(c.area)),
		Y: int(c.sumY / int64(c.area)),
	}
}

// findComponents extracts the connected foreground regions of a zero-origin
// binary mask using 4-connectivity breadth-first flood fill. Each region's
// pixel count, bounding box, and coordinate sums are accumulated during the
// fill.
func findComponents(mask *image.Gray) []component {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	seen := make([]bool, w*h)
	var comps []component

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if seen[y*w+x] || mask.Pix[y*mask.Stride+x] != MaskForeground {
				continue
			}

			comp := component{
				bbox: image.Rectangle{
					Min: image.Point{X: x, Y: y},
					Max: image.Point{X: x + 1, Y: y + 1},
				},
			}
			queue := []image.Point{{X: x, Y: y}}
			seen[y*w+x] = true

			for len(queue) > 0 {
				p := queue[0]
				queue = queue[1:]

				comp.area++
				comp.sumX += int64(p.X)
				comp.sumY += int64(p.Y)
				if p.X < comp.bbox.Min.X {
					comp.bbox.Min.X = p.X
				}
				if p.X+1 > comp.bbox.Max.X {
					comp.bbox.Max.X = p.X + 1
				}
				if p.Y < comp.bbox.Min.Y {
					comp.bbox.Min.Y = p.Y
				}
				if p.Y+1 > comp.bbox.Max.Y {
					comp.bbox.Max.Y = p.Y + 1
				}

				neighbors := [4]image.Point{
					{X: p.X + 1, Y: p.Y},
					{X: p.X - 1, Y: p.Y},
					{X: p.X, Y: p.Y + 1},
					{X: p.X, Y: p.Y - 1},
				}
				for _, n := range neighbors {
					if n.X < 0 || n.X >= w || n.Y < 0 || n.Y >= h {
						continue
					}
					if seen[n.Y*w+n.X] || mask.Pix[n.Y*mask.Stride+n.X] != MaskForeground {
						continue
					}
					seen[n.Y*w+n.X] = true
					queue = append(queue, n)
				}
			}

			comps = append(comps, comp)
		}
	}

	return comps
}
