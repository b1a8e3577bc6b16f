package slots

// Symbols on the reel strips.
const (
	Cherry     = 1
	Lemon      = 2
	Orange     = 3
	Plum       = 4
	Grape      = 5
	Watermelon = 6
	Seven      = 7
	Bell       = 8
	Crown      = 9 // scatter, never pays on the line
	Star       = 10
	Pear       = 11
	Strawberry = 12
)

var Reels = [3][]int{
	{1, 2, 3, 4, 1, 5, 6, 8, 7, 1, 3, 9, 1, 3, 5, 2, 8, 1, 6, 7, 10, 11, 12, 1, 9},
	{2, 1, 3, 1, 8, 5, 7, 2, 1, 6, 9, 1, 2, 8, 3, 1, 5, 7, 9, 10, 11, 12, 1, 6},
	{3, 2, 1, 8, 1, 5, 2, 7, 1, 3, 9, 1, 4, 6, 1, 8, 5, 7, 10, 11, 12, 1, 9, 3},
}

// Paytable holds the win for one, two and three of a kind on the middle
// line, counted from the left reel.
var Paytable = map[int][3]int{
	Cherry:     {2, 5, 10},
	Lemon:      {0, 5, 10},
	Orange:     {0, 5, 10},
	Plum:       {0, 5, 10},
	Grape:      {0, 10, 50},
	Watermelon: {0, 10, 75},
	Seven:      {0, 10, 75},
	Bell:       {0, 5, 25},
	Star:       {0, 20, 200},
	Pear:       {0, 5, 10},
	Strawberry: {0, 5, 50},
}

var (
	threeCrownWins = []int{5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60, 65, 70, 75, 80, 85, 90, 95, 100}
	twoCrownWins   = []int{2, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50}
)

// RNG is the randomness a machine draws from. *rand.Rand from math/rand/v2
// satisfies it.
type RNG interface {
	IntN(n int) int
	Float64() float64
}

// Visible returns the three symbols shown for a reel stopped at pos: the one
// above, the middle one and the one below.
func Visible(reel, pos int) [3]int {
	strip := Reels[reel]
	n := len(strip)
	var out [3]int
	for i := range out {
		out[i] = strip[((pos+i-1)%n+n)%n]
	}
	return out
}

type WinKind string

const (
	NoWin      WinKind = ""
	LineWin    WinKind = "line"
	ThreeCrown WinKind = "three_crowns"
	TwoCrown   WinKind = "two_crowns"
)

type Outcome struct {
	Stops  [3]int    `json:"stops"`
	Window [3][3]int `json:"window"` // per reel, top to bottom
	Line   [3]int    `json:"line"`
	Win    int       `json:"win"`
	Kind   WinKind   `json:"kind,omitempty"`
}

// Evaluate scores reels stopped at stops. Crowns anywhere in view on the
// first two or all three reels pay a weighted mystery amount instead of the
// line.
func Evaluate(stops [3]int, rng RNG) Outcome {
	o := Outcome{Stops: stops}
	var crowns [3]bool
	for r := range 3 {
		o.Window[r] = Visible(r, stops[r])
		o.Line[r] = o.Window[r][1]
		for _, sym := range o.Window[r] {
			if sym == Crown {
				crowns[r] = true
			}
		}
	}

	switch {
	case crowns[0] && crowns[1] && crowns[2]:
		o.Win, o.Kind = weighted(threeCrownWins, 21, rng), ThreeCrown
	case crowns[0] && crowns[1]:
		o.Win, o.Kind = weighted(twoCrownWins, 12, rng), TwoCrown
	default:
		o.Win = lineWin(o.Line)
		if o.Win > 0 {
			o.Kind = LineWin
		}
	}
	return o
}

func lineWin(line [3]int) int {
	pays, ok := Paytable[line[0]]
	if !ok {
		return 0
	}
	switch {
	case line[0] == line[1] && line[1] == line[2]:
		return pays[2]
	case line[0] == line[1]:
		return pays[1]
	}
	return pays[0]
}

// weighted picks from wins with weight (top-i)², favouring the low end.
func weighted(wins []int, top int, rng RNG) int {
	total := 0
	for i := range wins {
		w := max(1, top-i)
		total += w * w
	}
	r := rng.IntN(total)
	for i, win := range wins {
		w := max(1, top-i)
		if r < w*w {
			return win
		}
		r -= w * w
	}
	return wins[len(wins)-1]
}

// gambleOdds is the chance to double a pending win; it drops as the win
// grows.
func gambleOdds(pending int) float64 {
	switch {
	case pending < 10:
		return 0.4
	case pending < 20:
		return 0.35
	case pending < 40:
		return 0.3
	case pending < 80:
		return 0.25
	case pending < 120:
		return 0.2
	}
	return 0.15
}
