package mrz

// Filler is the padding character for unused MRZ positions.
const Filler = '<'

// PointsPerCheck is the score awarded for each passing check digit.
const PointsPerCheck = 15

// MaxChecksumScore is the ceiling of ChecksumResult.Score.
const MaxChecksumScore = 4 * PointsPerCheck

// weights is the cyclic 7-3-1 weighting defined by ICAO 9303.
var weights = [3]int{7, 3, 1}

// confusables maps a character to the look-alikes the OCR-B font is known to
// produce. A substitution is only ever accepted when it flips a failing check
// digit to passing.
var confusables = map[byte][]byte{
	'0': {'O', 'D', 'Q'},
	'O': {'0'},
	'D': {'0'},
	'Q': {'0'},
	'1': {'I'},
	'I': {'1'},
	'5': {'S'},
	'S': {'5'},
	'8': {'B'},
	'B': {'8'},
	'6': {'G'},
	'G': {'6'},
	'2': {'Z'},
	'Z': {'2'},
}

// digitFor maps letters commonly misread in numeric context to digits.
var digitFor = map[byte]byte{
	'O': '0', 'D': '0', 'Q': '0',
	'I': '1', 'Z': '2', 'S': '5',
	'G': '6', 'B': '8',
}

func charValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	default:
		// Filler and anything unexpected count as zero.
		return 0
	}
}

// CalculateCheckDigit applies the cyclic 7-3-1 weighting over data and
// returns the resulting digit character.
func CalculateCheckDigit(data string) byte {
	sum := 0
	for i := 0; i < len(data); i++ {
		sum += charValue(data[i]) * weights[i%3]
	}
	return byte('0' + sum%10)
}

// ValidateCheckDigit reports whether the expected check character matches the
// digit calculated over data. Non-digit check characters never match.
func ValidateCheckDigit(data string, expected byte) bool {
	if expected < '0' || expected > '9' {
		return false
	}
	return CalculateCheckDigit(data) == expected
}

// CheckOutcome is the result of evaluating a single check digit.
type CheckOutcome struct {
	Name      string `json:"name"`
	Data      string `json:"data"`
	Digit     byte   `json:"-"`
	Passed    bool   `json:"passed"`
	Corrected bool   `json:"corrected"`
}

// ChecksumResult aggregates the check digits of one candidate.
type ChecksumResult struct {
	Checks []CheckOutcome `json:"checks"`
	Passed int            `json:"passed"`
	Score  int            `json:"score"`
	// Lines holds the candidate lines with any accepted corrections
	// written back, so downstream field extraction sees corrected data.
	Lines []string `json:"lines"`
}

// Valid reports whether enough checks passed. The default threshold of one is
// deliberately permissive to tolerate OCR noise while rejecting pure garbage.
func (r ChecksumResult) Valid(minPasses int) bool {
	if minPasses < 1 {
		minPasses = 1
	}
	return r.Passed >= minPasses
}

// Checksum evaluates every check digit the layout declares against the
// candidate lines. Accepted auto-corrections on single-span checks are spliced
// back into the working lines before later checks run, so the composite check
// benefits from per-field corrections.
func Checksum(c Candidate, layout Layout) ChecksumResult {
	lines := make([]string, len(c.Lines))
	copy(lines, c.Lines)

	result := ChecksumResult{}
	for _, spec := range layout.Checks {
		outcome := evaluateCheck(lines, layout, spec)
		if outcome.Corrected && len(spec.Data) == 1 {
			lines = spliceData(lines, spec.Data[0], outcome.Data)
		}
		if outcome.Passed {
			result.Passed++
			result.Score += PointsPerCheck
		}
		result.Checks = append(result.Checks, outcome)
	}
	result.Lines = lines
	return result
}

func evaluateCheck(lines []string, layout Layout, spec CheckSpec) CheckOutcome {
	data := ""
	for _, span := range spec.Data {
		data += layout.slice(lines, span)
	}
	digit := byte(Filler)
	if spec.Digit.Line < len(lines) && spec.Digit.Index < len(lines[spec.Digit.Line]) {
		digit = lines[spec.Digit.Line][spec.Digit.Index]
	}

	outcome := CheckOutcome{Name: spec.Name, Data: data, Digit: digit}
	if ValidateCheckDigit(data, digit) {
		outcome.Passed = true
		return outcome
	}

	corrected, ok := correct(data, digit, spec.DigitsOnly)
	if !ok {
		return outcome
	}
	outcome.Data = corrected
	outcome.Passed = true
	outcome.Corrected = true
	return outcome
}

// correct searches the confusable set for a substitution that makes the check
// digit pass. It never applies a substitution speculatively: a candidate is
// returned only when verified by a passing check.
func correct(data string, digit byte, digitsOnly bool) (string, bool) {
	// The check digit itself may have been misread as a letter.
	digits := []byte{digit}
	if d, ok := digitFor[digit]; ok {
		digits = append(digits, d)
	}

	for _, d := range digits {
		if ValidateCheckDigit(data, d) {
			return data, true
		}
		if digitsOnly {
			if mapped := digitize(data); mapped != data && ValidateCheckDigit(mapped, d) {
				return mapped, true
			}
		}
		for i := 0; i < len(data); i++ {
			for _, alt := range confusables[data[i]] {
				if digitsOnly && (alt < '0' || alt > '9') {
					continue
				}
				candidate := data[:i] + string(alt) + data[i+1:]
				if ValidateCheckDigit(candidate, d) {
					return candidate, true
				}
			}
		}
	}
	return "", false
}

func digitize(data string) string {
	out := []byte(data)
	for i, c := range out {
		if d, ok := digitFor[c]; ok {
			out[i] = d
		}
	}
	return string(out)
}

func spliceData(lines []string, span Span, data string) []string {
	if span.Line >= len(lines) {
		return lines
	}
	line := lines[span.Line]
	if span.Start >= len(line) || span.End > len(line) {
		return lines
	}
	if len(data) != span.End-span.Start {
		return lines
	}
	lines[span.Line] = line[:span.Start] + data + line[span.End:]
	return lines
}
