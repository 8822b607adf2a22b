package scanner

// MRZData is the consolidated machine-readable zone content of a completed
// scan.
type MRZData struct {
	DocumentType    string   `json:"documentType"`
	IssuingCountry  string   `json:"issuingCountry"`
	DocumentNumber  string   `json:"documentNumber"`
	BirthDate       string   `json:"birthDate"`
	Sex             string   `json:"sex"`
	ExpiryDate      string   `json:"expiryDate"`
	Nationality     string   `json:"nationality"`
	NationalID      string   `json:"nationalId"`
	NationalIDValid bool     `json:"nationalIdValid"`
	Surname         string   `json:"surname"`
	GivenNames      string   `json:"givenNames"`
	ChecksumValid   bool     `json:"checksumValid"`
	RawMRZ          []string `json:"rawMRZ"`
}

// Metadata carries timing and quality diagnostics of a completed scan.
type Metadata struct {
	ScanDurationMs int64   `json:"scanDurationMs"`
	FrontTimestamp int64   `json:"frontTimestamp"`
	BackTimestamp  int64   `json:"backTimestamp"`
	BlurScore      float64 `json:"blurScore"`
	GlareScore     float64 `json:"glareScore"`
}

// ScanResult is the terminal output of a scan session. Immutable once
// created.
type ScanResult struct {
	MRZData MRZData `json:"mrzData"`

	// AuthenticityScore weighs structural, checksum, and quality
	// contributions into [0, 1].
	AuthenticityScore float64 `json:"authenticityScore"`
	StructuralScore   int     `json:"structuralScore"`
	ChecksumScore     int     `json:"checksumScore"`

	Metadata Metadata    `json:"metadata"`
	Errors   []ScanError `json:"errors,omitempty"`
}

// Authenticity weighting. Checksums dominate: they are the only
// cryptographic-style evidence the document offers.
const (
	weightChecksum   = 0.5
	weightStructural = 0.2
	weightQuality    = 0.3
)
