package pipeline

import "strings"

// DiceSimilarity computes the Sørensen–Dice coefficient over character
// bigrams, whitespace removed. Returns a score in [0, 1].
func DiceSimilarity(a, b string) float64 {
	a = stripSpace(a)
	b = stripSpace(b)

	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	bigrams := make(map[string]int, len(ra)-1)
	for i := 0; i < len(ra)-1; i++ {
		bigrams[string(ra[i:i+2])]++
	}

	intersections := 0
	for i := 0; i < len(rb)-1; i++ {
		bg := string(rb[i : i+2])
		if bigrams[bg] > 0 {
			bigrams[bg]--
			intersections++
		}
	}
	return 2.0 * float64(intersections) / float64(len(ra)+len(rb)-2)
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
