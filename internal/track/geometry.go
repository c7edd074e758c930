package track

import "math"

// degenerateArea is the smallest |2 * signed area| of a sample triangle that
// still counts as a bend. Below it the triangle is treated as a straight.
const degenerateArea = 1e-6

// Vec2 is a point or vector in track pixels (or m/s for velocities).
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

// Scale returns v * k.
func (v Vec2) Scale(k float64) Vec2 { return Vec2{X: v.X * k, Y: v.Y * k} }

// Len returns the Euclidean length of v.
func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

// Pose is a centreline position with its heading in radians.
type Pose struct {
	X       float64
	Y       float64
	Heading float64
}

// Tangent returns the unit vector along the heading.
func (p Pose) Tangent() Vec2 { return Vec2{X: math.Cos(p.Heading), Y: math.Sin(p.Heading)} }

// Normal returns the unit vector 90 degrees to the left of the heading.
func (p Pose) Normal() Vec2 { return Vec2{X: -math.Sin(p.Heading), Y: math.Cos(p.Heading)} }

// Bounds is an axis aligned box in pixels.
type Bounds struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// twiceSignedArea returns twice the signed area of the triangle p1 p2 p3.
// Positive means the points turn counter-clockwise (a left-hand bend).
func twiceSignedArea(p1, p2, p3 Vec2) float64 {
	return p1.X*(p2.Y-p3.Y) - p1.Y*(p2.X-p3.X) + p2.X*p3.Y - p3.X*p2.Y
}

// RadiusFromThreePoints returns the circumradius of the triangle p1 p2 p3 in
// the points' own unit. Collinear or nearly collinear points give +Inf.
//
// Physics and the driver both estimate curvature through this function so
// that the bots plan against exactly the limit the dynamics enforce.
func RadiusFromThreePoints(p1, p2, p3 Vec2) float64 {
	a := twiceSignedArea(p1, p2, p3)
	if math.Abs(a) < degenerateArea {
		return math.Inf(1)
	}
	s1 := p1.X*p1.X + p1.Y*p1.Y
	s2 := p2.X*p2.X + p2.Y*p2.Y
	s3 := p3.X*p3.X + p3.Y*p3.Y
	b := s1*(p3.Y-p2.Y) + s2*(p1.Y-p3.Y) + s3*(p2.Y-p1.Y)
	c := s1*(p2.X-p3.X) + s2*(p3.X-p1.X) + s3*(p1.X-p2.X)
	xc := -b / (2 * a)
	yc := -c / (2 * a)
	r := math.Hypot(p1.X-xc, p1.Y-yc)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return math.Inf(1)
	}
	return r
}

// angleLerp interpolates from a to b along the shorter arc.
func angleLerp(a, b, t float64) float64 {
	delta := math.Mod(b-a+math.Pi, 2*math.Pi) - math.Pi
	if delta < -math.Pi {
		delta += 2 * math.Pi
	}
	return a + delta*t
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
