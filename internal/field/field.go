// Package field implements the 12x22 playing field and its update format.
//
// A full update is 264 cell characters, row by row from the top. A diff
// update is a sequence of groups: one block marker in '!'..'/' followed by
// coordinate pairs, each coordinate offset by '3'.
package field

import (
	"math/rand/v2"
	"strings"
)

const (
	Width  = 12
	Height = 22

	cells = "012345acnrsbgqo"
)

// Field is an immutable field value; the zero value is an empty field.
type Field struct {
	grid [Height][Width]byte
}

func Empty() Field { return Field{} }

// Of builds a field from a single update applied to an empty field.
func Of(update string) Field { return Empty().Apply(update) }

// Apply returns the field that results from applying a full or diff update.
// Malformed parts of an update are ignored.
func (f Field) Apply(update string) Field {
	if len(update) == Width*Height && isFull(update) {
		var out Field
		for i := 0; i < len(update); i++ {
			out.grid[i/Width][i%Width] = byte(strings.IndexByte(cells, update[i]))
		}
		return out
	}

	out := f
	block := -1
	for i := 0; i < len(update); {
		c := update[i]
		if c >= '!' && c <= '/' {
			block = int(c - '!')
			i++
			continue
		}
		if i+1 >= len(update) {
			break
		}
		x, y := int(c)-'3', int(update[i+1])-'3'
		i += 2
		if block < 0 || x < 0 || x >= Width || y < 0 || y >= Height {
			continue
		}
		out.grid[y][x] = byte(block)
	}
	return out
}

// String serializes the field as a full update.
func (f Field) String() string {
	var b strings.Builder
	b.Grow(Width * Height)
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			b.WriteByte(cells[f.grid[y][x]])
		}
	}
	return b.String()
}

// Highest returns the height of the stack: the number of rows from the
// topmost occupied row down to the bottom, 0 for an empty field.
func (f Field) Highest() int {
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if f.grid[y][x] != 0 {
				return Height - y
			}
		}
	}
	return 0
}

// FilledPlaceholder returns a completely stacked field with one gap per
// row, shown for players whose real field is unknown.
func FilledPlaceholder() Field {
	var f Field
	for y := 0; y < Height; y++ {
		gap := rand.IntN(Width)
		for x := 0; x < Width; x++ {
			if x != gap {
				f.grid[y][x] = byte(1 + rand.IntN(5))
			}
		}
	}
	return f
}

func isFull(update string) bool {
	for i := 0; i < len(update); i++ {
		if strings.IndexByte(cells, update[i]) < 0 {
			return false
		}
	}
	return true
}
