package score

import (
	"fmt"
	"strings"
)

// ParsePoint translates a venue point string ("0", "15", "30", "40", "AD")
// into the 0..4 integer ladder.
func ParsePoint(s string) (int, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "0":
		return 0, nil
	case "15":
		return 1, nil
	case "30":
		return 2, nil
	case "40":
		return 3, nil
	case "AD", "A":
		return 4, nil
	}
	return 0, fmt.Errorf("score: unrecognized point %q", s)
}

// PointName renders a ladder value back to the venue notation.
func PointName(p int) string {
	switch p {
	case 0:
		return "0"
	case 1:
		return "15"
	case 2:
		return "30"
	case 3:
		return "40"
	case 4:
		return "AD"
	}
	return fmt.Sprintf("?%d", p)
}
