package components

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/paulmach/orb"

	"github.com/rendis/leadtap/internal/engine/geo"
	"github.com/rendis/leadtap/internal/tui/styles"
)

// GridView renders the planned sampling grid of an extraction as a
// Braille scatter plot: the radius circle as an outline, the sample
// points as dots.
type GridView struct {
	width   int
	height  int
	samples []orb.Point
	ring    []orb.Point
	bound   orb.Bound
}

func NewGridView(width, height int) GridView {
	return GridView{width: width, height: height}
}

func (g *GridView) SetSize(width, height int) {
	g.width = width
	g.height = height
}

// SetGrid installs the sample points and the radius outline around the
// center, then fits the viewport to both.
func (g *GridView) SetGrid(points []geo.Point, centerLat, centerLng float64, radiusM int) {
	g.samples = g.samples[:0]
	for _, p := range points {
		g.samples = append(g.samples, orb.Point{p.Lng, p.Lat})
	}
	g.ring = circleRing(centerLat, centerLng, radiusM)

	all := make(orb.MultiPoint, 0, len(g.samples)+len(g.ring))
	all = append(all, g.samples...)
	all = append(all, g.ring...)
	if len(all) == 0 {
		g.bound = orb.Bound{}
		return
	}
	g.bound = all.Bound().Pad(paddingFor(all.Bound()))
}

// circleRing approximates the radius circle with 72 segments, with the
// longitude radius widened by cos(lat) like the grid sampler does.
func circleRing(centerLat, centerLng float64, radiusM int) []orb.Point {
	const segments = 72
	const metersPerLatDegree = 111320.0

	latR := float64(radiusM) / metersPerLatDegree
	lngR := float64(radiusM) / (metersPerLatDegree * math.Cos(centerLat*math.Pi/180.0))

	ring := make([]orb.Point, 0, segments)
	for i := 0; i < segments; i++ {
		a := 2 * math.Pi * float64(i) / segments
		ring = append(ring, orb.Point{
			centerLng + lngR*math.Cos(a),
			centerLat + latR*math.Sin(a),
		})
	}
	return ring
}

func paddingFor(b orb.Bound) float64 {
	pad := math.Max(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]) * 0.05
	if pad == 0 {
		pad = 0.001
	}
	return pad
}

// Braille character encoding:
// Each braille char is a 2x4 dot grid.
// Dot positions:  0 3
//
//	1 4
//	2 5
//	6 7
//
// Unicode: 0x2800 + sum of raised dot bits
var brailleDots = [8]rune{0x01, 0x02, 0x04, 0x08, 0x10, 0x20, 0x40, 0x80}

func (g GridView) View() string {
	if g.width <= 0 || g.height <= 0 || g.bound.IsZero() {
		return ""
	}

	// Each braille char represents 2 columns x 4 rows of dots
	cols := g.width
	rows := g.height
	dotW := cols * 2
	dotH := rows * 4

	minLng, minLat := g.bound.Min[0], g.bound.Min[1]
	maxLng, maxLat := g.bound.Max[0], g.bound.Max[1]
	latRange := maxLat - minLat
	lngRange := maxLng - minLng
	if latRange == 0 || lngRange == 0 {
		return strings.Repeat(strings.Repeat(" ", cols)+"\n", rows)
	}

	// Aspect ratio correction: 1° lng is shorter than 1° lat away from
	// the equator. Braille dots are roughly square on screen.
	avgLat := (minLat + maxLat) / 2
	cosLat := math.Cos(avgLat * math.Pi / 180)
	geoW := lngRange * cosLat
	geoH := latRange

	geoAspect := geoW / geoH
	dotAspect := float64(dotW) / float64(dotH)

	effectiveW, effectiveH := dotW, dotH
	offsetX, offsetY := 0, 0
	if geoAspect < dotAspect {
		effectiveW = int(float64(dotH) * geoAspect)
		if effectiveW < 4 {
			effectiveW = 4
		}
		offsetX = (dotW - effectiveW) / 2
	} else {
		effectiveH = int(float64(dotW) / geoAspect)
		if effectiveH < 4 {
			effectiveH = 4
		}
		offsetY = (dotH - effectiveH) / 2
	}

	ringGrid := make([][]bool, dotH)
	pointGrid := make([][]bool, dotH)
	for i := range ringGrid {
		ringGrid[i] = make([]bool, dotW)
		pointGrid[i] = make([]bool, dotW)
	}

	toDot := func(p orb.Point) (int, int) {
		x := offsetX + int((p[0]-minLng)/lngRange*float64(effectiveW-1))
		y := offsetY + int((maxLat-p[1])/latRange*float64(effectiveH-1))
		return x, y
	}

	// Radius outline as connected segments (Bresenham)
	for i := 0; i < len(g.ring); i++ {
		x0, y0 := toDot(g.ring[i])
		x1, y1 := toDot(g.ring[(i+1)%len(g.ring)])
		drawLine(ringGrid, x0, y0, x1, y1, dotW, dotH)
	}

	for _, p := range g.samples {
		x, y := toDot(p)
		if x >= 0 && x < dotW && y >= 0 && y < dotH {
			pointGrid[y][x] = true
		}
	}

	ringStyle := lipgloss.NewStyle().Foreground(styles.Secondary)
	pointStyle := lipgloss.NewStyle().Foreground(styles.Success)

	var sb strings.Builder
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			var ringVal rune = 0x2800
			var pointVal rune = 0x2800

			dotPositions := [8][2]int{
				{0, 0}, {1, 0}, {2, 0}, {0, 1},
				{1, 1}, {2, 1}, {3, 0}, {3, 1},
			}

			for dot := 0; dot < 8; dot++ {
				dy := row*4 + dotPositions[dot][0]
				dx := col*2 + dotPositions[dot][1]
				if dy < dotH && dx < dotW {
					if ringGrid[dy][dx] {
						ringVal |= brailleDots[dot]
					}
					if pointGrid[dy][dx] {
						pointVal |= brailleDots[dot]
					}
				}
			}

			if pointVal != 0x2800 {
				sb.WriteString(pointStyle.Render(string(pointVal)))
			} else if ringVal != 0x2800 {
				sb.WriteString(ringStyle.Render(string(ringVal)))
			} else {
				sb.WriteRune(' ')
			}
		}
		if row < rows-1 {
			sb.WriteRune('\n')
		}
	}

	return sb.String()
}

// drawLine draws a line between two points using Bresenham's algorithm.
func drawLine(grid [][]bool, x0, y0, x1, y1, maxW, maxH int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := 1
	if x0 >= x1 {
		sx = -1
	}
	sy := 1
	if y0 >= y1 {
		sy = -1
	}
	err := dx + dy

	for {
		if x0 >= 0 && x0 < maxW && y0 >= 0 && y0 < maxH {
			grid[y0][x0] = true
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
