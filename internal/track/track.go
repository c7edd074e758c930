// Package track builds the sampled centreline of a slot-car course and
// answers the geometric queries the simulation needs: pose at an arc
// position, local curvature radius and the nearest arc position to a point.
//
// Raw geometry is kept in pixels, arc length in metres. MetersPerPixel is the
// only bridge between the two and every query that crosses units applies it.
package track

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/race/slotcar/config"
)

// SegmentType discriminates straights from curves.
type SegmentType string

const (
	SegmentStraight SegmentType = "straight"
	SegmentCurve    SegmentType = "curve"
)

// Direction is the turning direction of a curve.
type Direction string

const (
	DirLeft  Direction = "left"
	DirRight Direction = "right"
)

// Segment is one piece of track. Length applies to straights, Radius, Angle
// and Direction to curves.
type Segment struct {
	Type      SegmentType `json:"type" yaml:"type"`
	Length    float64     `json:"lengthPx,omitempty" yaml:"lengthPx,omitempty"`
	Radius    float64     `json:"radiusPx,omitempty" yaml:"radiusPx,omitempty"`
	Angle     float64     `json:"angleDeg,omitempty" yaml:"angleDeg,omitempty"` // degrees
	Direction Direction   `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// Start is the pose the first segment begins at.
type Start struct {
	X          float64 `json:"x" yaml:"x"`
	Y          float64 `json:"y" yaml:"y"`
	HeadingDeg float64 `json:"headingDeg" yaml:"headingDeg"`
}

// Data is the track description as it is stored on disk.
type Data struct {
	Name        string    `json:"name" yaml:"name"`
	Segments    []Segment `json:"segments" yaml:"segments"`
	Start       Start     `json:"start" yaml:"start"`
	LaneWidthPx float64   `json:"laneWidthPx,omitempty" yaml:"laneWidthPx,omitempty"`
}

var (
	ErrNoSegments   = errors.New("track has no segments")
	ErrInvalidScale = errors.New("meters per pixel must be positive")
)

// Track is the immutable sampled representation of a course.
type Track struct {
	Data           Data
	MetersPerPixel float64
	TotalLength    float64   // metres
	LaneWidth      float64   // pixels
	Points         []Vec2    // pixels, closed: the start point is repeated at the end
	Headings       []float64 // radians, parallel to Points
	Cumulative     []float64 // metres, parallel to Points
	LeftEdge       []Vec2
	RightEdge      []Vec2
	Bounds         Bounds
}

// New samples the segments of data at a fixed pixel step.
func New(data Data, metersPerPixel float64) (*Track, error) {
	if metersPerPixel <= 0 {
		return nil, ErrInvalidScale
	}
	if len(data.Segments) == 0 {
		return nil, ErrNoSegments
	}
	for i, seg := range data.Segments {
		if err := seg.validate(); err != nil {
			return nil, errors.Wrapf(err, "segment %d", i)
		}
	}

	t := &Track{
		Data:           data,
		MetersPerPixel: metersPerPixel,
		LaneWidth:      data.LaneWidthPx,
	}
	if t.LaneWidth <= 0 {
		t.LaneWidth = config.LaneWidthPx
	}

	start := Vec2{X: data.Start.X, Y: data.Start.Y}
	startHeading := deg2rad(data.Start.HeadingDeg)

	pts := []Vec2{start}
	heads := []float64{startHeading}
	cum := []float64{0}

	x, y := start.X, start.Y
	heading := startHeading
	s := 0.0
	step := config.TrackStepPx

	for _, seg := range data.Segments {
		switch seg.Type {
		case SegmentStraight:
			steps := int(math.Max(1, math.Floor(seg.Length/step)))
			dx := math.Cos(heading) * (seg.Length / float64(steps))
			dy := math.Sin(heading) * (seg.Length / float64(steps))
			for i := 0; i < steps; i++ {
				x += dx
				y += dy
				s += math.Hypot(dx, dy) * metersPerPixel
				pts = append(pts, Vec2{X: x, Y: y})
				heads = append(heads, heading)
				cum = append(cum, s)
			}
		case SegmentCurve:
			angle := deg2rad(seg.Angle)
			dirSign := seg.Direction.sign()
			cx := x - math.Sin(heading)*dirSign*seg.Radius
			cy := y + math.Cos(heading)*dirSign*seg.Radius
			arcLen := math.Abs(seg.Radius * angle)
			steps := int(math.Max(1, math.Ceil(arcLen/step)))
			dtheta := angle / float64(steps) * dirSign
			for i := 0; i < steps; i++ {
				heading += dtheta
				x = cx + math.Sin(heading)*dirSign*seg.Radius
				y = cy - math.Cos(heading)*dirSign*seg.Radius
				s += math.Abs(dtheta) * seg.Radius * metersPerPixel
				pts = append(pts, Vec2{X: x, Y: y})
				heads = append(heads, heading)
				cum = append(cum, s)
			}
		}
	}

	// close the loop
	pts = append(pts, start)
	heads = append(heads, startHeading)
	cum = append(cum, s)

	t.Points = pts
	t.Headings = heads
	t.Cumulative = cum
	t.TotalLength = s
	t.Bounds = boundsOf(pts)
	t.LeftEdge, t.RightEdge = edges(pts, heads, t.LaneWidth/2)
	return t, nil
}

func (s Segment) validate() error {
	switch s.Type {
	case SegmentStraight:
		if s.Length <= 0 {
			return errors.Errorf("straight length must be positive, got %v", s.Length)
		}
	case SegmentCurve:
		if s.Radius <= 0 {
			return errors.Errorf("curve radius must be positive, got %v", s.Radius)
		}
		if s.Angle == 0 {
			return errors.New("curve angle must not be zero")
		}
		if s.Direction != DirLeft && s.Direction != DirRight {
			return errors.Errorf("unknown curve direction %q", s.Direction)
		}
	default:
		return errors.Errorf("unknown segment type %q", s.Type)
	}
	return nil
}

func (d Direction) sign() float64 {
	if d == DirLeft {
		return 1
	}
	return -1
}

func boundsOf(pts []Vec2) Bounds {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return Bounds{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// edges offsets the centreline by half the lane width on both sides.
// Only the presentation layer uses them.
func edges(pts []Vec2, heads []float64, half float64) ([]Vec2, []Vec2) {
	left := make([]Vec2, len(pts))
	right := make([]Vec2, len(pts))
	for i, p := range pts {
		n := Pose{Heading: heads[i]}.Normal()
		left[i] = p.Add(n.Scale(half))
		right[i] = p.Add(n.Scale(-half))
	}
	return left, right
}

// Wrap maps an unbounded arc position into [0, TotalLength).
func (t *Track) Wrap(s float64) float64 {
	if t.TotalLength <= 0 {
		return 0
	}
	w := math.Mod(s, t.TotalLength)
	if w < 0 {
		w += t.TotalLength
	}
	if w >= t.TotalLength {
		w = 0
	}
	return w
}

// IndexAt returns the first sample whose cumulative distance is not below
// the wrapped arc position s.
func (t *Track) IndexAt(s float64) int {
	w := t.Wrap(s)
	idx := sort.SearchFloat64s(t.Cumulative, w)
	if idx > len(t.Cumulative)-1 {
		idx = len(t.Cumulative) - 1
	}
	return idx
}

// span returns the samples bracketing s and the interpolation fraction.
func (t *Track) span(s float64) (int, int, float64) {
	w := t.Wrap(s)
	idx := t.IndexAt(w)
	prev := max(0, idx-1)
	s0 := t.Cumulative[prev]
	s1 := t.Cumulative[idx]
	frac := 0.0
	if s1 > s0 {
		frac = (w - s0) / (s1 - s0)
	}
	return prev, idx, frac
}

// SamplePosition returns the interpolated centreline point at arc position s.
func (t *Track) SamplePosition(s float64) Vec2 {
	prev, idx, frac := t.span(s)
	p0, p1 := t.Points[prev], t.Points[idx]
	return Vec2{X: p0.X + (p1.X-p0.X)*frac, Y: p0.Y + (p1.Y-p0.Y)*frac}
}

// SamplePose returns the interpolated centreline pose at arc position s.
func (t *Track) SamplePose(s float64) Pose {
	prev, idx, frac := t.span(s)
	p0, p1 := t.Points[prev], t.Points[idx]
	return Pose{
		X:       p0.X + (p1.X-p0.X)*frac,
		Y:       p0.Y + (p1.Y-p0.Y)*frac,
		Heading: angleLerp(t.Headings[prev], t.Headings[idx], frac),
	}
}

// window returns the three samples the curvature estimate at s is based on.
// The indices are clamped to the sample range rather than wrapped around
// the start line.
func (t *Track) window(s float64) (Vec2, Vec2, Vec2) {
	idx := t.IndexAt(s)
	i0 := max(0, idx-2)
	i2 := min(len(t.Points)-1, idx+2)
	return t.Points[i0], t.Points[idx], t.Points[i2]
}

// RadiusAt estimates the local curvature radius at arc position s, in
// pixels. Straights report +Inf.
func (t *Track) RadiusAt(s float64) float64 {
	return RadiusFromThreePoints(t.window(s))
}

// RadiusMetersAt is RadiusAt converted to metres.
func (t *Track) RadiusMetersAt(s float64) float64 {
	r := t.RadiusAt(s)
	if math.IsInf(r, 1) {
		return r
	}
	return r * t.MetersPerPixel
}

// TurnDirection reports which way the track bends at s: +1 for a left-hand
// bend, -1 for a right-hand bend and 0 on a straight.
func (t *Track) TurnDirection(s float64) float64 {
	a := twiceSignedArea(t.window(s))
	switch {
	case math.Abs(a) < degenerateArea:
		return 0
	case a > 0:
		return 1
	default:
		return -1
	}
}

// NearestArcPosition returns the arc position of the sample closest to p.
// It scans every sample, which is fine for the rare respot calls.
func (t *Track) NearestArcPosition(p Vec2) float64 {
	best := 0
	bestD2 := math.Inf(1)
	for i, q := range t.Points {
		dx := q.X - p.X
		dy := q.Y - p.Y
		if d2 := dx*dx + dy*dy; d2 < bestD2 {
			bestD2 = d2
			best = i
		}
	}
	return t.Cumulative[best]
}
