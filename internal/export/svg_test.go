package export

import (
	"strings"
	"testing"

	"github.com/san-kum/daesim/internal/viz"
)

func TestCanvasToSVG(t *testing.T) {
	c := viz.NewCanvas(4, 2)
	c.DrawLine(0, 0, 7, 7)

	svg := CanvasToSVG(c, 2)
	if !strings.HasPrefix(svg, `<?xml version="1.0"`) {
		t.Error("missing XML header")
	}
	if !strings.Contains(svg, "<circle") {
		t.Error("expected at least one dot for a drawn line")
	}
	if !strings.Contains(svg, `width="16" height="16"`) {
		t.Errorf("unexpected viewport: %s", svg[:200])
	}
}

func TestCanvasToSVGNil(t *testing.T) {
	if CanvasToSVG(nil, 1) != "" {
		t.Error("nil canvas should render to an empty string")
	}
}

func TestCurveToSVG(t *testing.T) {
	xs := []float64{0, 0.5, 1}
	ys := []float64{1, 0.6, 0.37}
	svg := CurveToSVG(xs, ys, 100, 50, "#00ff00")
	if !strings.Contains(svg, `<path fill="none" stroke="#00ff00"`) {
		t.Error("missing path element")
	}
	if !strings.Contains(svg, " L") {
		t.Error("expected line segments")
	}
}

func TestCurveToSVGDegenerate(t *testing.T) {
	if CurveToSVG([]float64{0}, []float64{1}, 100, 50, "red") != "" {
		t.Error("single point should render to an empty string")
	}
	if CurveToSVG([]float64{0, 1}, []float64{1}, 100, 50, "red") != "" {
		t.Error("mismatched lengths should render to an empty string")
	}
}
