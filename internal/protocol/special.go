package protocol

// Special is an attack-style effect, identified by its classic letter.
type Special string

const (
	AddLine      Special = "a"
	ClearLine    Special = "c"
	NukeField    Special = "n"
	RandomClear  Special = "r"
	SwitchField  Special = "s"
	ClearSpecial Special = "b"
	Gravity      Special = "g"
	QuakeField   Special = "q"
	BlockBomb    Special = "o"
)

// Specials lists every special in protocol order.
var Specials = []Special{AddLine, ClearLine, NukeField, RandomClear, SwitchField, ClearSpecial, Gravity, QuakeField, BlockBomb}

func ParseSpecial(s string) (Special, bool) {
	for _, sp := range Specials {
		if string(sp) == s {
			return sp, true
		}
	}
	return "", false
}

// NewSpecialCounts returns a tally with every special present at zero.
func NewSpecialCounts() map[Special]int {
	m := make(map[Special]int, len(Specials))
	for _, sp := range Specials {
		m[sp] = 0
	}
	return m
}
