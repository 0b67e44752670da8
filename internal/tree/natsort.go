package tree

import "unicode"

// Compare orders strings the way a person reads them: runs of digits are
// compared by numeric value, everything else case-insensitively, and a
// digit run sorts before letters at the same position.
func Compare(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ra) && j < len(rb) {
		ca, cb := ra[i], rb[j]
		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			startA, startB := i, j
			for i < len(ra) && unicode.IsDigit(ra[i]) {
				i++
			}
			for j < len(rb) && unicode.IsDigit(rb[j]) {
				j++
			}
			numA := trimLeadingZeros(ra[startA:i])
			numB := trimLeadingZeros(rb[startB:j])
			if len(numA) != len(numB) {
				if len(numA) < len(numB) {
					return -1
				}
				return 1
			}
			for k := range numA {
				if numA[k] != numB[k] {
					if numA[k] < numB[k] {
						return -1
					}
					return 1
				}
			}
			continue
		}
		la, lb := unicode.ToLower(ca), unicode.ToLower(cb)
		if la != lb {
			if la < lb {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case i < len(ra):
		return 1
	case j < len(rb):
		return -1
	default:
		return 0
	}
}

// Less is the sort.Slice form of Compare.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

func trimLeadingZeros(digits []rune) []rune {
	k := 0
	for k < len(digits)-1 && digits[k] == '0' {
		k++
	}
	return digits[k:]
}
