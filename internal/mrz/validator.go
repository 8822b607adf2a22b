package mrz

import (
	"fmt"
	"strings"
)

// ErrorCode names a structural or checksum finding on a frame. Findings are
// recorded, never thrown: a noisy frame simply fails to contribute a passing
// vote to consensus.
type ErrorCode string

const (
	ErrLineCount   ErrorCode = "mrz_line_count"
	ErrLineLength  ErrorCode = "mrz_line_length"
	ErrAlphabet    ErrorCode = "mrz_alphabet"
	ErrFillerRatio ErrorCode = "mrz_filler_ratio"
)

// ValidationError is one coded, non-fatal structural finding.
type ValidationError struct {
	Code   ErrorCode `json:"code"`
	Line   int       `json:"line"`
	Detail string    `json:"detail"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s (line %d): %s", e.Code, e.Line, e.Detail)
}

// MaxStructuralScore is the ceiling of Candidate.StructuralScore.
const MaxStructuralScore = 20

const structuralPointsPerCriterion = 5

// ValidatorConfig holds the tunable knobs of structural validation.
type ValidatorConfig struct {
	// Accepted band for the per-line filler ratio. Violations are recorded
	// but do not invalidate a candidate, which keeps recall high under OCR
	// noise.
	FillerMin float64
	FillerMax float64
}

// DefaultValidatorConfig returns the documented 15-40% filler band.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{FillerMin: 0.15, FillerMax: 0.40}
}

// Candidate is a cleaned, fixed-length MRZ line set. Immutable once built.
type Candidate struct {
	Lines           []string          `json:"lines"`
	Layout          string            `json:"layout"`
	Valid           bool              `json:"valid"`
	StructuralScore int               `json:"structural_score"`
	Errors          []ValidationError `json:"errors,omitempty"`
}

// CleanLine normalizes one raw OCR line: whitespace stripped, uppercased, and
// recognized filler look-alikes mapped to '<'. Characters outside the MRZ
// alphabet are left in place so the alphabet check can flag them.
func CleanLine(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToUpper(raw) {
		switch {
		case r == ' ' || r == '\t':
			// stripped
		case r == '.' || r == ',' || r == '«' || r == '»':
			b.WriteByte(Filler)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BuildCandidate cleans a raw OCR line set and assembles an MRZ candidate for
// the given layout. Lines are filtered to the layout's fixed length (longer
// lines are trimmed, shorter ones dropped) and the first N surviving lines are
// taken in appearance order.
func BuildCandidate(rawLines []string, layout Layout, cfg ValidatorConfig) Candidate {
	c := Candidate{Layout: layout.Name}

	trimmed := false
	for _, raw := range rawLines {
		line := CleanLine(raw)
		if len(line) < layout.LineLength {
			continue
		}
		if len(line) > layout.LineLength {
			line = line[:layout.LineLength]
			trimmed = true
		}
		c.Lines = append(c.Lines, line)
		if len(c.Lines) == layout.Lines {
			break
		}
	}

	countOK := len(c.Lines) == layout.Lines
	if countOK {
		c.StructuralScore += structuralPointsPerCriterion
	} else {
		c.Errors = append(c.Errors, ValidationError{
			Code:   ErrLineCount,
			Line:   -1,
			Detail: fmt.Sprintf("expected %d lines of length %d, got %d", layout.Lines, layout.LineLength, len(c.Lines)),
		})
	}

	if countOK && !trimmed {
		c.StructuralScore += structuralPointsPerCriterion
	} else if trimmed {
		c.Errors = append(c.Errors, ValidationError{
			Code:   ErrLineLength,
			Line:   -1,
			Detail: fmt.Sprintf("line exceeded fixed length %d and was trimmed", layout.LineLength),
		})
	}

	alphabetOK := true
	for i, line := range c.Lines {
		coerced, bad := coerceAlphabet(line)
		if bad > 0 {
			alphabetOK = false
			c.Errors = append(c.Errors, ValidationError{
				Code:   ErrAlphabet,
				Line:   i,
				Detail: fmt.Sprintf("%d characters outside A-Z 0-9 '<'", bad),
			})
		}
		c.Lines[i] = coerced
	}
	if countOK && alphabetOK {
		c.StructuralScore += structuralPointsPerCriterion
	}

	fillerOK := true
	for i, line := range c.Lines {
		ratio := fillerRatio(line)
		if ratio < cfg.FillerMin || ratio > cfg.FillerMax {
			fillerOK = false
			c.Errors = append(c.Errors, ValidationError{
				Code:   ErrFillerRatio,
				Line:   i,
				Detail: fmt.Sprintf("filler ratio %.2f outside [%.2f, %.2f]", ratio, cfg.FillerMin, cfg.FillerMax),
			})
		}
	}
	if countOK && fillerOK {
		c.StructuralScore += structuralPointsPerCriterion
	}

	c.Valid = countOK && alphabetOK
	return c
}

// coerceAlphabet replaces characters outside the MRZ alphabet with filler and
// reports how many were replaced.
func coerceAlphabet(line string) (string, int) {
	out := []byte(line)
	bad := 0
	for i := 0; i < len(line); i++ {
		c := line[i]
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == Filler {
			continue
		}
		out[i] = Filler
		bad++
	}
	return string(out), bad
}

func fillerRatio(line string) float64 {
	if len(line) == 0 {
		return 0
	}
	return float64(strings.Count(line, string(rune(Filler)))) / float64(len(line))
}
