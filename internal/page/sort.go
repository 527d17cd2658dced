package page

import (
	"cmp"
	"slices"
)

// Sort returns a new slice ordered by Order ascending, then Slug ascending.
// The input slice is left untouched.
func Sort(pages []Page) []Page {
	sorted := slices.Clone(pages)
	slices.SortStableFunc(sorted, func(a, b Page) int {
		return cmp.Or(
			cmp.Compare(a.Order(), b.Order()),
			cmp.Compare(a.Slug(), b.Slug()),
		)
	})
	return sorted
}
