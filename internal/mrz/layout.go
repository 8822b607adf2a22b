package mrz

// FieldName identifies a typed field inside a machine-readable zone.
type FieldName string

const (
	FieldDocumentType   FieldName = "document_type"
	FieldIssuingCountry FieldName = "issuing_country"
	FieldDocumentNumber FieldName = "document_number"
	FieldBirthDate      FieldName = "birth_date"
	FieldSex            FieldName = "sex"
	FieldExpiryDate     FieldName = "expiry_date"
	FieldNationality    FieldName = "nationality"
	FieldNationalID     FieldName = "national_id"
	FieldNames          FieldName = "names"
)

// Span addresses a byte range on one MRZ line. End is exclusive.
type Span struct {
	Line  int
	Start int
	End   int
}

// Pos addresses a single byte on one MRZ line.
type Pos struct {
	Line  int
	Index int
}

// CheckSpec declares one check digit: the spans it protects, in concatenation
// order, and where the digit itself sits. DigitsOnly marks fields whose data
// is numeric by definition (dates), which widens OCR auto-correction.
type CheckSpec struct {
	Name       string
	Data       []Span
	Digit      Pos
	DigitsOnly bool
}

// Layout is a declarative description of one MRZ format. Field extraction and
// checksum evaluation are both driven from this table so alternate layouts do
// not duplicate parsing code.
type Layout struct {
	Name       string
	Lines      int
	LineLength int
	Fields     map[FieldName]Span
	Checks     []CheckSpec
}

// Check names shared across layouts.
const (
	CheckDocumentNumber = "document_number"
	CheckBirthDate      = "birth_date"
	CheckExpiryDate     = "expiry_date"
	CheckComposite      = "composite"
)

// TD1 is the 3-line, 30-character layout used on ID-1 sized cards.
// The national identifier span follows the Turkish ID card, which carries the
// TCKN in the optional data of line 1.
var TD1 = Layout{
	Name:       "TD1",
	Lines:      3,
	LineLength: 30,
	Fields: map[FieldName]Span{
		FieldDocumentType:   {Line: 0, Start: 0, End: 2},
		FieldIssuingCountry: {Line: 0, Start: 2, End: 5},
		FieldDocumentNumber: {Line: 0, Start: 5, End: 14},
		FieldNationalID:     {Line: 0, Start: 16, End: 27},
		FieldBirthDate:      {Line: 1, Start: 0, End: 6},
		FieldSex:            {Line: 1, Start: 7, End: 8},
		FieldExpiryDate:     {Line: 1, Start: 8, End: 14},
		FieldNationality:    {Line: 1, Start: 15, End: 18},
		FieldNames:          {Line: 2, Start: 0, End: 30},
	},
	Checks: []CheckSpec{
		{
			Name:  CheckDocumentNumber,
			Data:  []Span{{Line: 0, Start: 5, End: 14}},
			Digit: Pos{Line: 0, Index: 14},
		},
		{
			Name:       CheckBirthDate,
			Data:       []Span{{Line: 1, Start: 0, End: 6}},
			Digit:      Pos{Line: 1, Index: 6},
			DigitsOnly: true,
		},
		{
			Name:       CheckExpiryDate,
			Data:       []Span{{Line: 1, Start: 8, End: 14}},
			Digit:      Pos{Line: 1, Index: 14},
			DigitsOnly: true,
		},
		{
			Name: CheckComposite,
			Data: []Span{
				{Line: 0, Start: 5, End: 30},
				{Line: 1, Start: 0, End: 7},
				{Line: 1, Start: 8, End: 15},
				{Line: 1, Start: 18, End: 29},
			},
			Digit: Pos{Line: 1, Index: 29},
		},
	},
}

// TD2 is the 2-line, 36-character layout.
var TD2 = Layout{
	Name:       "TD2",
	Lines:      2,
	LineLength: 36,
	Fields: map[FieldName]Span{
		FieldDocumentType:   {Line: 0, Start: 0, End: 2},
		FieldIssuingCountry: {Line: 0, Start: 2, End: 5},
		FieldNames:          {Line: 0, Start: 5, End: 36},
		FieldDocumentNumber: {Line: 1, Start: 0, End: 9},
		FieldNationality:    {Line: 1, Start: 10, End: 13},
		FieldBirthDate:      {Line: 1, Start: 13, End: 19},
		FieldSex:            {Line: 1, Start: 20, End: 21},
		FieldExpiryDate:     {Line: 1, Start: 21, End: 27},
		FieldNationalID:     {Line: 1, Start: 28, End: 35},
	},
	Checks: []CheckSpec{
		{
			Name:  CheckDocumentNumber,
			Data:  []Span{{Line: 1, Start: 0, End: 9}},
			Digit: Pos{Line: 1, Index: 9},
		},
		{
			Name:       CheckBirthDate,
			Data:       []Span{{Line: 1, Start: 13, End: 19}},
			Digit:      Pos{Line: 1, Index: 19},
			DigitsOnly: true,
		},
		{
			Name:       CheckExpiryDate,
			Data:       []Span{{Line: 1, Start: 21, End: 27}},
			Digit:      Pos{Line: 1, Index: 27},
			DigitsOnly: true,
		},
		{
			Name: CheckComposite,
			Data: []Span{
				{Line: 1, Start: 0, End: 10},
				{Line: 1, Start: 13, End: 20},
				{Line: 1, Start: 21, End: 35},
			},
			Digit: Pos{Line: 1, Index: 35},
		},
	},
}

// TD3 is the 2-line, 44-character passport layout.
var TD3 = Layout{
	Name:       "TD3",
	Lines:      2,
	LineLength: 44,
	Fields: map[FieldName]Span{
		FieldDocumentType:   {Line: 0, Start: 0, End: 2},
		FieldIssuingCountry: {Line: 0, Start: 2, End: 5},
		FieldNames:          {Line: 0, Start: 5, End: 44},
		FieldDocumentNumber: {Line: 1, Start: 0, End: 9},
		FieldNationality:    {Line: 1, Start: 10, End: 13},
		FieldBirthDate:      {Line: 1, Start: 13, End: 19},
		FieldSex:            {Line: 1, Start: 20, End: 21},
		FieldExpiryDate:     {Line: 1, Start: 21, End: 27},
		FieldNationalID:     {Line: 1, Start: 28, End: 42},
	},
	Checks: []CheckSpec{
		{
			Name:  CheckDocumentNumber,
			Data:  []Span{{Line: 1, Start: 0, End: 9}},
			Digit: Pos{Line: 1, Index: 9},
		},
		{
			Name:       CheckBirthDate,
			Data:       []Span{{Line: 1, Start: 13, End: 19}},
			Digit:      Pos{Line: 1, Index: 19},
			DigitsOnly: true,
		},
		{
			Name:       CheckExpiryDate,
			Data:       []Span{{Line: 1, Start: 21, End: 27}},
			Digit:      Pos{Line: 1, Index: 27},
			DigitsOnly: true,
		},
		{
			Name: CheckComposite,
			Data: []Span{
				{Line: 1, Start: 0, End: 10},
				{Line: 1, Start: 13, End: 20},
				{Line: 1, Start: 21, End: 43},
			},
			Digit: Pos{Line: 1, Index: 43},
		},
	},
}

// LayoutByName resolves a configured layout name, defaulting to TD1.
func LayoutByName(name string) Layout {
	switch name {
	case "TD2":
		return TD2
	case "TD3":
		return TD3
	default:
		return TD1
	}
}

func (l Layout) slice(lines []string, s Span) string {
	if s.Line >= len(lines) {
		return ""
	}
	line := lines[s.Line]
	if s.Start >= len(line) {
		return ""
	}
	end := s.End
	if end > len(line) {
		end = len(line)
	}
	return line[s.Start:end]
}
