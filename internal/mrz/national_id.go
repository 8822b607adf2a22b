package mrz

// ValidateNationalID verifies an 11-digit Turkish national identifier (TCKN).
// The tenth digit must equal ((7*sum of odd-position digits) - sum of
// even-position digits) mod 10, and the eleventh the sum of the first ten
// digits mod 10. Identifiers of other shapes simply fail.
func ValidateNationalID(id string) bool {
	if len(id) != 11 || id[0] == '0' || !allDigits(id) {
		return false
	}

	odds, evens, sum := 0, 0, 0
	for i := 0; i < 9; i++ {
		d := int(id[i] - '0')
		if i%2 == 0 {
			odds += d
		} else {
			evens += d
		}
		sum += d
	}

	d10 := ((odds * 7) - evens) % 10
	if d10 < 0 {
		d10 += 10
	}
	if d10 != int(id[9]-'0') {
		return false
	}

	d11 := (sum + d10) % 10
	return d11 == int(id[10]-'0')
}
