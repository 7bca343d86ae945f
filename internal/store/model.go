package store

import "time"

// Metadata keys used for stored fingerprints. The verifier looks these up at
// file scope first, then document scope for older sidecar variants.
const (
	KeyFingerprint          = "fingerprint"
	KeyFingerprintAlgorithm = "fingerprint_algorithm"
)

// Document is one archived document inside an AIP.
type Document struct {
	ID            int64
	RootPath      string
	AIPUUID       string
	AggregationID *int64
}

// File is one physical file belonging to a document. RootPath stores the
// fully composed, slash-normalized filesystem path; RelativePath is the name
// the manifest used.
type File struct {
	ID           int64
	RelativePath string
	RootPath     string
	IsMain       bool
	DocumentID   int64
}

// MetadataRow is a typed key/value attached to a document, optionally scoped
// to one of its files. The declared type is advisory and never validated.
type MetadataRow struct {
	ID         int64
	Key        string
	Value      string
	Type       string
	DocumentID int64
	FileID     *int64
}

// Subject variant payloads. Each sidecar role match creates a fresh subject
// row plus one of these; subjects are never de-duplicated across roles.
type (
	NaturalPerson struct {
		FirstName      string
		LastName       string
		TaxCode        string
		DigitalAddress string
		Role           string
	}

	LegalEntity struct {
		Name           string
		TaxCode        string
		DigitalAddress string
		Role           string
	}

	InternalPublicAdministration struct {
		Name           string
		AdminCode      string
		Office         string
		DigitalAddress string
		Role           string
	}

	ExternalPublicAdministration struct {
		Name           string
		AdminCode      string
		DigitalAddress string
		Role           string
	}

	OtherSubject struct {
		Description    string
		DigitalAddress string
		Role           string
	}

	QualifiedSystem struct {
		Name string
		Role string
	}
)

// AdministrativeProcedure mirrors the sidecar procedure block. DocumentID
// records which document's sidecar produced it, so a re-extraction can
// replace the procedure instead of duplicating it.
type AdministrativeProcedure struct {
	ID                int64
	CatalogURI        string
	Title             string
	SubjectOfInterest string
	DocumentID        int64
}

// Phase is one phase of an administrative procedure. Type and StartDate are
// required; phases missing either are dropped by the extractor.
type Phase struct {
	ID          int64
	Type        string
	StartDate   string
	EndDate     string
	ProcedureID int64
}

// IntegrityResult is a persisted verification outcome. A digest mismatch is a
// normal invalid result, never an error.
type IntegrityResult struct {
	ID             int64
	FileID         int64
	Valid          bool
	ExpectedDigest string
	ActualDigest   string
	Algorithm      string
	CheckedAt      time.Time
}

// SemanticDocument bundles what the semantic pass needs to assemble one
// document's text: its class name and metadata values in insertion order.
type SemanticDocument struct {
	ID        int64
	ClassName string
	Values    []string
}
