package types

// Point is a position in viewport coordinates.
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Size is a width/height pair in viewport coordinates.
type Size struct {
	Width  float64 `json:"width" msgpack:"width"`
	Height float64 `json:"height" msgpack:"height"`
}

// Rect is an axis-aligned box. Origin is optional: scanners that only report
// corner points leave it nil.
type Rect struct {
	Origin *Point `json:"origin,omitempty" msgpack:"origin,omitempty"`
	Size   Size   `json:"size" msgpack:"size"`
}

// Viewport is the area detections are reported against.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the viewport midpoint.
func (v Viewport) Center() Point {
	return Point{X: v.Width / 2, Y: v.Height / 2}
}

// Detection is one code observed in one camera frame or one still image.
type Detection struct {
	Payload      string  `json:"data" msgpack:"data"`
	FormatTag    string  `json:"type" msgpack:"type"` // e.g. "qr"
	Bounds       *Rect   `json:"bounds,omitempty" msgpack:"bounds,omitempty"`
	CornerPoints []Point `json:"cornerPoints" msgpack:"cornerPoints"`
}

// Clone returns a deep copy that shares no memory with d.
func (d Detection) Clone() Detection {
	out := Detection{
		Payload:   d.Payload,
		FormatTag: d.FormatTag,
	}
	if d.Bounds != nil {
		b := Rect{Size: d.Bounds.Size}
		if d.Bounds.Origin != nil {
			o := *d.Bounds.Origin
			b.Origin = &o
		}
		out.Bounds = &b
	}
	out.CornerPoints = make([]Point, len(d.CornerPoints))
	copy(out.CornerPoints, d.CornerPoints)
	return out
}

// CloneAll deep-copies a slice of detections.
func CloneAll(in []Detection) []Detection {
	out := make([]Detection, len(in))
	for i, d := range in {
		out[i] = d.Clone()
	}
	return out
}
