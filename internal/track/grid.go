package track

import "github.com/race/slotcar/config"

// StartingGrid returns an arc position for each of count cars. Cars are
// lined up in rows of two behind the start line, the columns offset to
// either side of the centreline, and each slot is snapped back onto the
// nearest centreline sample.
func (t *Track) StartingGrid(count int) []float64 {
	positions := make([]float64, 0, count)
	colOffset := t.LaneWidth * config.GridColumnOffset
	for i := 0; i < count; i++ {
		row := i / config.GridColumns
		col := i % config.GridColumns
		side := 1.0
		if col == 0 {
			side = -1.0
		}
		pose := t.SamplePose(-float64(row) * config.GridRowSpacing)
		slot := Vec2{X: pose.X, Y: pose.Y}.Add(pose.Normal().Scale(colOffset * side))
		positions = append(positions, t.NearestArcPosition(slot))
	}
	return positions
}
