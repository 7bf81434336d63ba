package actions

import "fmt"

// MinGridHeight is the smallest number of rows EmptySlots considers.
const MinGridHeight = 10

// emptySlots returns the free 1x1 cells of a grid width cells wide, in
// row-major order. The grid extends one row past the lowest occupied row
// and is at least MinGridHeight+2 rows high.
func emptySlots(actions []*Action, width int) []string {
	maxY := MinGridHeight
	taken := make(map[string]struct{}, len(actions))
	for _, a := range actions {
		x, y := a.Cell()
		if y > maxY {
			maxY = y
		}
		taken[fmt.Sprintf("%d,%d", x, y)] = struct{}{}
	}

	// Rows are 0 based, plus one free row.
	height := maxY + 2

	var out []string
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			cell := fmt.Sprintf("%d,%d", x, y)
			if _, ok := taken[cell]; !ok {
				out = append(out, cell)
			}
		}
	}
	return out
}
