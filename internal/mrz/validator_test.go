package mrz

import "testing"

func TestBuildCandidateCleansAndSelectsLines(t *testing.T) {
	raw := []string{
		"ignore me",
		"i<tura12b456780<12345678950<<<",
		" 9503124M3005213TUR123456789504 ",
		"YILMAZ<<MEHMET<CAN<<<<<<<<<<<<",
	}
	c := BuildCandidate(raw, TD1, DefaultValidatorConfig())

	if !c.Valid {
		t.Fatalf("expected valid candidate, errors: %v", c.Errors)
	}
	if len(c.Lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(c.Lines))
	}
	for i, want := range testLines {
		if c.Lines[i] != want {
			t.Errorf("line %d = %q, want %q", i, c.Lines[i], want)
		}
	}
}

func TestBuildCandidateRecordsFillerRatioWithoutInvalidating(t *testing.T) {
	c := BuildCandidate(testLines, TD1, DefaultValidatorConfig())
	if !c.Valid {
		t.Fatalf("filler ratio violation must not invalidate, errors: %v", c.Errors)
	}

	// Line 2 of the synthetic card has no filler at all and line 3 is half
	// filler, both outside the 15-40% band.
	found := 0
	for _, e := range c.Errors {
		if e.Code == ErrFillerRatio {
			found++
		}
	}
	if found != 2 {
		t.Fatalf("expected 2 filler ratio findings, got %d (%v)", found, c.Errors)
	}
	if c.StructuralScore != MaxStructuralScore-structuralPointsPerCriterion {
		t.Errorf("expected score %d, got %d", MaxStructuralScore-structuralPointsPerCriterion, c.StructuralScore)
	}
}

func TestBuildCandidateRejectsWrongLineCount(t *testing.T) {
	c := BuildCandidate([]string{testLines[0], "TOO<SHORT"}, TD1, DefaultValidatorConfig())
	if c.Valid {
		t.Fatal("expected invalid candidate")
	}
	if !hasCode(c.Errors, ErrLineCount) {
		t.Errorf("expected %s finding, got %v", ErrLineCount, c.Errors)
	}
}

func TestBuildCandidateTrimsOverlongLines(t *testing.T) {
	raw := []string{testLines[0] + "<<<<", testLines[1], testLines[2]}
	c := BuildCandidate(raw, TD1, DefaultValidatorConfig())
	if !c.Valid {
		t.Fatalf("trimmed candidate should stay valid, errors: %v", c.Errors)
	}
	if len(c.Lines[0]) != TD1.LineLength {
		t.Errorf("line 0 length = %d, want %d", len(c.Lines[0]), TD1.LineLength)
	}
	if !hasCode(c.Errors, ErrLineLength) {
		t.Errorf("expected %s finding, got %v", ErrLineLength, c.Errors)
	}
}

func TestBuildCandidateFlagsAlphabetViolations(t *testing.T) {
	bad := "I@TURA12B456780<12345678950<<<"
	c := BuildCandidate([]string{bad, testLines[1], testLines[2]}, TD1, DefaultValidatorConfig())
	if c.Valid {
		t.Fatal("alphabet violation must invalidate the candidate")
	}
	if !hasCode(c.Errors, ErrAlphabet) {
		t.Errorf("expected %s finding, got %v", ErrAlphabet, c.Errors)
	}
	// The offending character is coerced to filler so downstream stages
	// still see the fixed alphabet.
	if c.Lines[0][1] != Filler {
		t.Errorf("expected coerced filler, got %c", c.Lines[0][1])
	}
}

func TestCleanLineNormalizesLookAlikes(t *testing.T) {
	got := CleanLine(" i<tur a12. ")
	if got != "I<TURA12<" {
		t.Errorf("CleanLine = %q", got)
	}
}

func hasCode(errs []ValidationError, code ErrorCode) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}
