package viz

import (
	"strings"
)

// Braille patterns pack 2x4 dots per terminal cell, unicode offset
// 0x2800.
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	c.Clear()
	return c
}

// Set marks a sub-pixel; the canvas is (Width*2) x (Height*4) dots.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col := x / 2
	row := y / 4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		if c.Grid[i] == nil {
			c.Grid[i] = make([]rune, c.Width)
		}
		for j := range c.Grid[i] {
			c.Grid[i][j] = 0x2800
		}
	}
}

// DrawLine draws with Bresenham's algorithm in sub-pixel coordinates.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

// PhasePortrait plots v versus u (two trajectory components of equal
// length) scaled to fill the canvas, connecting consecutive points.
func (c *Canvas) PhasePortrait(u, v []float64) {
	if len(u) < 2 || len(u) != len(v) {
		return
	}
	umin, umax := minMax(u)
	vmin, vmax := minMax(v)
	if umax == umin {
		umax = umin + 1
	}
	if vmax == vmin {
		vmax = vmin + 1
	}
	w := c.Width*2 - 1
	h := c.Height*4 - 1
	px := func(i int) (int, int) {
		x := int(float64(w) * (u[i] - umin) / (umax - umin))
		y := h - int(float64(h)*(v[i]-vmin)/(vmax-vmin))
		return x, y
	}
	x0, y0 := px(0)
	for i := 1; i < len(u); i++ {
		x1, y1 := px(i)
		c.DrawLine(x0, y0, x1, y1)
		x0, y0 = x1, y1
	}
}

func minMax(v []float64) (lo, hi float64) {
	lo, hi = v[0], v[0]
	for _, x := range v {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
