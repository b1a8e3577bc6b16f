package quest

import "fmt"

const (
	ColorFourBonus = 30
	ColorFiveBonus = 25 // paid on top of ColorFourBonus
	StarBonus      = 50
	RowBonus       = 35
	ColumnBonus    = 35
)

// Grid is the completion state of the 25 cells, indexed by position.
type Grid [TaskCount]bool

// GridOf builds a Grid from task rows. Rows with an out-of-range position
// are ignored.
func GridOf(tasks []BingoTask) Grid {
	var g Grid
	for _, t := range tasks {
		if ValidPosition(t.Position) && t.Completed {
			g[t.Position] = true
		}
	}
	return g
}

// With returns a copy of g with pos marked completed.
func (g Grid) With(pos int) Grid {
	if ValidPosition(pos) {
		g[pos] = true
	}
	return g
}

func (g Grid) Count() int {
	n := 0
	for _, done := range g {
		if done {
			n++
		}
	}
	return n
}

// Snapshot is the derived score of a grid.
type Snapshot struct {
	BasePoints  int `json:"basePoints"`
	BonusPoints int `json:"bonusPoints"`
	TotalEarned int `json:"totalEarned"`
}

type AwardKind string

const (
	AwardColorFour AwardKind = "color_four"
	AwardColorFive AwardKind = "color_five"
	AwardStars     AwardKind = "all_stars"
	AwardRow       AwardKind = "first_row"
	AwardColumn    AwardKind = "first_column"
)

type Award struct {
	Kind   AwardKind `json:"kind"`
	Detail string    `json:"detail"`
	Points int       `json:"points"`
}

// BonusStatus explains a Snapshot: the per-color counts, the star count and
// which bonus rules fired.
type BonusStatus struct {
	ColorCounts map[Color]int `json:"colorCounts"`
	Stars       int           `json:"stars"`
	FullRow     int           `json:"fullRow"`    // lowest completed row, -1 if none
	FullColumn  int           `json:"fullColumn"` // lowest completed column, -1 if none
	Awards      []Award       `json:"awards"`
}

// Evaluate scores a grid. It is a pure function of the completed set.
func Evaluate(g Grid) Snapshot {
	return score(Status(g), g)
}

// EvaluateTasks is Evaluate over task rows.
func EvaluateTasks(tasks []BingoTask) Snapshot {
	return Evaluate(GridOf(tasks))
}

// Status reports which bonus rules a grid satisfies.
func Status(g Grid) BonusStatus {
	st := BonusStatus{
		ColorCounts: make(map[Color]int, len(Colors)),
		FullRow:     -1,
		FullColumn:  -1,
	}

	for pos, done := range g {
		if !done {
			continue
		}
		st.ColorCounts[ColorOf(pos)]++
		if IsStar(pos) {
			st.Stars++
		}
	}

	for _, c := range Colors {
		n := st.ColorCounts[c]
		if n >= 4 {
			st.Awards = append(st.Awards, Award{Kind: AwardColorFour, Detail: string(c), Points: ColorFourBonus})
		}
		if n >= 5 {
			st.Awards = append(st.Awards, Award{Kind: AwardColorFive, Detail: string(c), Points: ColorFiveBonus})
		}
	}

	if st.Stars == len(starPositions) {
		st.Awards = append(st.Awards, Award{Kind: AwardStars, Detail: "stars", Points: StarBonus})
	}

	for i := 0; i < GridSize && st.FullRow < 0; i++ {
		if lineDone(g, i*GridSize, 1) {
			st.FullRow = i
		}
	}
	if st.FullRow >= 0 {
		st.Awards = append(st.Awards, Award{Kind: AwardRow, Detail: fmt.Sprintf("row %d", st.FullRow+1), Points: RowBonus})
	}

	for i := 0; i < GridSize && st.FullColumn < 0; i++ {
		if lineDone(g, i, GridSize) {
			st.FullColumn = i
		}
	}
	if st.FullColumn >= 0 {
		st.Awards = append(st.Awards, Award{Kind: AwardColumn, Detail: fmt.Sprintf("column %d", st.FullColumn+1), Points: ColumnBonus})
	}

	return st
}

func lineDone(g Grid, start, step int) bool {
	for k := 0; k < GridSize; k++ {
		if !g[start+k*step] {
			return false
		}
	}
	return true
}

func score(st BonusStatus, g Grid) Snapshot {
	s := Snapshot{BasePoints: g.Count() * PointValue}
	for _, a := range st.Awards {
		s.BonusPoints += a.Points
	}
	s.TotalEarned = s.BasePoints + s.BonusPoints
	return s
}

// Delta is the amount to credit when a grid moves from prev to next. It is
// never negative.
func Delta(prev, next Snapshot) int {
	return max(0, next.TotalEarned-prev.TotalEarned)
}
