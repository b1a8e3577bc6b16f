package quest

const (
	GridSize   = 5
	TaskCount  = GridSize * GridSize
	PointValue = 20
)

type Color string

const (
	Pink   Color = "pink"
	Blue   Color = "blue"
	Yellow Color = "yellow"
	Orange Color = "orange"
	Green  Color = "green"
)

// Colors lists every grid color in a stable order.
var Colors = []Color{Pink, Blue, Yellow, Orange, Green}

// Each row and each column holds every color exactly once.
var layout = [TaskCount]Color{
	Pink, Blue, Yellow, Orange, Green,
	Blue, Green, Pink, Yellow, Orange,
	Yellow, Pink, Orange, Blue, Green,
	Orange, Yellow, Green, Pink, Blue,
	Green, Orange, Blue, Yellow, Pink,
}

var starPositions = [...]int{2, 6, 12, 19, 24}

func ValidPosition(pos int) bool { return pos >= 0 && pos < TaskCount }

// ColorOf returns the color of the cell at pos. It panics on an invalid
// position; callers validate input with ValidPosition first.
func ColorOf(pos int) Color { return layout[pos] }

func IsStar(pos int) bool {
	for _, s := range starPositions {
		if s == pos {
			return true
		}
	}
	return false
}

// StarPositions returns a copy of the star cell positions.
func StarPositions() []int {
	out := make([]int, len(starPositions))
	copy(out, starPositions[:])
	return out
}

func Row(pos int) int    { return pos / GridSize }
func Column(pos int) int { return pos % GridSize }
