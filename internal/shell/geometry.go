package shell

import (
	"fmt"
	"math"
)

// Point is a position in a grid or on the layout
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Geometry is a rectangle in layout coordinates
type Geometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Tiled edge bits
const (
	EdgeTop    uint32 = 1 << 0
	EdgeBottom uint32 = 1 << 1
	EdgeLeft   uint32 = 1 << 2
	EdgeRight  uint32 = 1 << 3

	// EdgesAll marks a fully tiled (maximized) view
	EdgesAll = EdgeTop | EdgeBottom | EdgeLeft | EdgeRight
)

// Describe returns the point as a JSON-ready map
func (p Point) Describe() map[string]any {
	return map[string]any{"x": p.X, "y": p.Y}
}

// Describe returns the geometry as a JSON-ready map
func (g Geometry) Describe() map[string]any {
	return map[string]any{
		"x":      g.X,
		"y":      g.Y,
		"width":  g.Width,
		"height": g.Height,
	}
}

// GeometryFromMap decodes a geometry object as produced by encoding/json
func GeometryFromMap(data map[string]any) (Geometry, error) {
	var g Geometry
	fields := []struct {
		name string
		dst  *int
	}{
		{"x", &g.X}, {"y", &g.Y}, {"width", &g.Width}, {"height", &g.Height},
	}
	for _, f := range fields {
		v, err := intField(data, f.name)
		if err != nil {
			return Geometry{}, err
		}
		*f.dst = v
	}
	if g.Width < 0 || g.Height < 0 {
		return Geometry{}, fmt.Errorf("geometry size cannot be negative")
	}
	return g, nil
}

// intField reads an integral number from a decoded JSON object
func intField(data map[string]any, name string) (int, error) {
	raw, ok := data[name]
	if !ok {
		return 0, fmt.Errorf("missing field %q", name)
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("field %q must be an integer", name)
		}
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("field %q must be a number", name)
	}
}
