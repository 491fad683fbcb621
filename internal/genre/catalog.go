// Package genre holds the fixed catalog of genres a whistle can be filed under.
package genre

import (
	"strconv"
	"strings"
)

// Unknown is the catalog's first entry and the fallback for any missing selection.
const Unknown = "Unknown"

var catalog = [...]string{
	Unknown,
	"Blues",
	"Classical",
	"Electronic",
	"Jazz",
	"Metal",
	"Pop",
	"Reggae",
	"Rap",
	"RnB",
	"Rock",
	"Soul",
}

// Count returns the number of genres in the catalog.
func Count() int {
	return len(catalog)
}

// All returns a copy of the catalog in display order.
func All() []string {
	out := make([]string, len(catalog))
	copy(out, catalog[:])
	return out
}

// Lookup returns the genre at index i and whether i is in range.
func Lookup(i int) (string, bool) {
	if i < 0 || i >= len(catalog) {
		return "", false
	}
	return catalog[i], true
}

// At returns the genre at index i, falling back to Unknown when i is out of range.
func At(i int) string {
	if name, ok := Lookup(i); ok {
		return name
	}
	return catalog[0]
}

// Index finds a genre by name, ignoring case and surrounding space.
func Index(name string) (int, bool) {
	name = strings.TrimSpace(name)
	for i, g := range catalog {
		if strings.EqualFold(g, name) {
			return i, true
		}
	}
	return -1, false
}

// Parse reads a selection typed by a user: a catalog index or a genre name.
// Anything else yields -1, which At resolves to Unknown.
func Parse(selection string) int {
	selection = strings.TrimSpace(selection)
	if i, err := strconv.Atoi(selection); err == nil {
		return i
	}
	if i, ok := Index(selection); ok {
		return i
	}
	return -1
}
