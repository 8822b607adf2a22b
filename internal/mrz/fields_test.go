package mrz

import "testing"

func TestExtractTD1Fields(t *testing.T) {
	f := Extract(testLines, TD1)

	want := Fields{
		DocumentType:    "I",
		IssuingCountry:  "TUR",
		DocumentNumber:  "A12B45678",
		BirthDate:       "1995-03-12",
		Sex:             SexMale,
		ExpiryDate:      "2030-05-21",
		Nationality:     "TUR",
		NationalID:      "12345678950",
		NationalIDValid: true,
		Surname:         "YILMAZ",
		GivenNames:      "MEHMET CAN",
	}
	if f != want {
		t.Errorf("Extract = %+v, want %+v", f, want)
	}
}

func TestExtractDegradesUnparseableDates(t *testing.T) {
	lines := append([]string(nil), testLines...)
	lines[1] = "95A3124M3005213TUR123456789504"

	f := Extract(lines, TD1)
	if f.BirthDate != "95A312" {
		t.Errorf("expected raw passthrough 95A312, got %q", f.BirthDate)
	}
	if f.ExpiryDate != "2030-05-21" {
		t.Errorf("expiry date should still parse, got %q", f.ExpiryDate)
	}
}

func TestExtractSexFallsBackToUnspecified(t *testing.T) {
	lines := append([]string(nil), testLines...)
	lines[1] = "9503124<3005213TUR123456789504"

	if f := Extract(lines, TD1); f.Sex != SexUnspecified {
		t.Errorf("expected unspecified sex, got %q", f.Sex)
	}
}

func TestExtractNamesWithoutSeparator(t *testing.T) {
	lines := append([]string(nil), testLines...)
	lines[2] = "YILMAZ<MEHMET<<<<<<<<<<<<<<<<<"

	f := Extract(lines, TD1)
	// No double filler before the trailing padding: the whole value is the
	// surname, with single fillers becoming spaces.
	if f.Surname != "YILMAZ MEHMET" || f.GivenNames != "" {
		t.Errorf("got surname %q, given %q", f.Surname, f.GivenNames)
	}
}

func TestVoteMapRoundTrip(t *testing.T) {
	f := Extract(testLines, TD1)
	votes := f.VoteMap()

	var rebuilt Fields
	for name, value := range votes {
		rebuilt.Set(name, value)
	}
	rebuilt.NationalIDValid = ValidateNationalID(rebuilt.NationalID)

	if rebuilt != f {
		t.Errorf("rebuilt = %+v, want %+v", rebuilt, f)
	}
}

func TestValidateNationalID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"12345678950", true},
		{"02345678950", false}, // leading zero
		{"12345678940", false}, // wrong tenth digit
		{"12345678951", false}, // wrong eleventh digit
		{"1234567895", false},  // short
		{"1234567895A", false}, // non-digit
		{"", false},
	}
	for _, c := range cases {
		if got := ValidateNationalID(c.id); got != c.want {
			t.Errorf("ValidateNationalID(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}
