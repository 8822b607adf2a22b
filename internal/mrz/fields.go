package mrz

import (
	"strings"
	"time"
)

// Sex is the sex marker decoded from the MRZ.
type Sex string

const (
	SexMale        Sex = "M"
	SexFemale      Sex = "F"
	SexUnspecified Sex = "X"
)

// Fields holds the typed values extracted from one candidate. Immutable once
// created; all fields are plain strings so the struct is comparable, which
// consensus voting relies on.
type Fields struct {
	DocumentType    string `json:"documentType"`
	IssuingCountry  string `json:"issuingCountry"`
	DocumentNumber  string `json:"documentNumber"`
	BirthDate       string `json:"birthDate"`
	Sex             Sex    `json:"sex"`
	ExpiryDate      string `json:"expiryDate"`
	Nationality     string `json:"nationality"`
	NationalID      string `json:"nationalId"`
	NationalIDValid bool   `json:"nationalIdValid"`
	Surname         string `json:"surname"`
	GivenNames      string `json:"givenNames"`
}

// Extract parses the candidate lines into typed fields using the layout's
// span table. It never fails: unparseable values degrade to their raw form.
func Extract(lines []string, layout Layout) Fields {
	f := Fields{
		DocumentType:   trimFiller(layout.slice(lines, layout.Fields[FieldDocumentType])),
		IssuingCountry: trimFiller(layout.slice(lines, layout.Fields[FieldIssuingCountry])),
		DocumentNumber: trimFiller(layout.slice(lines, layout.Fields[FieldDocumentNumber])),
		Nationality:    trimFiller(layout.slice(lines, layout.Fields[FieldNationality])),
		NationalID:     trimFiller(layout.slice(lines, layout.Fields[FieldNationalID])),
	}
	f.BirthDate = parseDate(layout.slice(lines, layout.Fields[FieldBirthDate]))
	f.ExpiryDate = parseDate(layout.slice(lines, layout.Fields[FieldExpiryDate]))
	f.Sex = parseSex(layout.slice(lines, layout.Fields[FieldSex]))
	f.Surname, f.GivenNames = parseNames(layout.slice(lines, layout.Fields[FieldNames]))
	f.NationalIDValid = ValidateNationalID(f.NationalID)
	return f
}

// Set assigns a field by its vote name. Used by consensus to assemble a
// per-field majority result.
func (f *Fields) Set(name FieldName, value string) {
	switch name {
	case FieldDocumentType:
		f.DocumentType = value
	case FieldIssuingCountry:
		f.IssuingCountry = value
	case FieldDocumentNumber:
		f.DocumentNumber = value
	case FieldBirthDate:
		f.BirthDate = value
	case FieldSex:
		f.Sex = Sex(value)
	case FieldExpiryDate:
		f.ExpiryDate = value
	case FieldNationality:
		f.Nationality = value
	case FieldNationalID:
		f.NationalID = value
	case FieldNames:
		parts := strings.SplitN(value, "\x00", 2)
		f.Surname = parts[0]
		if len(parts) == 2 {
			f.GivenNames = parts[1]
		}
	}
}

// VoteMap flattens the fields into name/value pairs for majority voting.
func (f Fields) VoteMap() map[FieldName]string {
	return map[FieldName]string{
		FieldDocumentType:   f.DocumentType,
		FieldIssuingCountry: f.IssuingCountry,
		FieldDocumentNumber: f.DocumentNumber,
		FieldBirthDate:      f.BirthDate,
		FieldSex:            string(f.Sex),
		FieldExpiryDate:     f.ExpiryDate,
		FieldNationality:    f.Nationality,
		FieldNationalID:     f.NationalID,
		FieldNames:          f.Surname + "\x00" + f.GivenNames,
	}
}

// parseDate maps a 6-digit YYMMDD value to an ISO date. Semantic failures
// degrade to the raw value rather than erroring; OCR noise in a date is a
// checksum problem, not a parsing one.
func parseDate(raw string) string {
	raw = trimFiller(raw)
	if len(raw) != 6 || !allDigits(raw) {
		return raw
	}
	t, err := time.Parse("060102", raw)
	if err != nil {
		return raw
	}
	return t.Format("2006-01-02")
}

func parseSex(raw string) Sex {
	switch trimFiller(raw) {
	case "M":
		return SexMale
	case "F":
		return SexFemale
	default:
		return SexUnspecified
	}
}

// parseNames splits the name field on the first double filler into surname
// and given names. Remaining single fillers separate name parts.
func parseNames(raw string) (string, string) {
	return splitJoinedNames(strings.TrimRight(raw, "<"))
}

func splitJoinedNames(joined string) (string, string) {
	surname := joined
	given := ""
	if idx := strings.Index(joined, "<<"); idx >= 0 {
		surname = joined[:idx]
		given = joined[idx+2:]
	}
	return fillerToSpace(surname), fillerToSpace(given)
}

func fillerToSpace(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "<", " "))
}

func trimFiller(s string) string {
	return strings.Trim(s, "<")
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
