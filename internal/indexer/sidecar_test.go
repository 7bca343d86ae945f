package indexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/store"
)

// newSidecarFixture gives a store with one document and its primary file row,
// ready for direct extractor calls.
func newSidecarFixture(t *testing.T) (*Indexer, *store.ArchiveStore, int64) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	classID, err := st.EnsureDocumentClass("Letters")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.InsertAIP("A1", classID, "", "docs"); err != nil {
		t.Fatal(err)
	}
	docID, err := st.InsertDocument("docs/l1", "A1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.InsertFile("l1.pdf", "docs/l1/l1.pdf", true, docID); err != nil {
		t.Fatal(err)
	}
	return New(st, nil), st, docID
}

func extract(t *testing.T, ix *Indexer, docID int64, sidecar string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meta.xml")
	if err := os.WriteFile(path, []byte(sidecar), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ix.extractSidecar(docID, path); err != nil {
		t.Fatalf("extractSidecar failed: %v", err)
	}
}

func documentMetadata(t *testing.T, st *store.ArchiveStore, docID int64) map[string]string {
	t.Helper()
	rows, err := st.DB().Query(
		"SELECT key, value FROM metadata WHERE document_id = ? AND file_id IS NULL", docID)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	got := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			t.Fatal(err)
		}
		got[k] = v
	}
	return got
}

func TestExtractFieldsDropsBlanksAndUsesAlternates(t *testing.T) {
	ix, st, docID := newSidecarFixture(t)

	// DocumentID is the alternate spelling of Identifier; Description is
	// whitespace-only and must be dropped silently.
	extract(t, ix, docID, `<DocumentMetadata>
  <DocumentID>L-42</DocumentID>
  <Description>   </Description>
  <Dates><Creation>2023-07-01</Creation></Dates>
</DocumentMetadata>`)

	want := map[string]string{
		"identifier":    "L-42",
		"creation_date": "2023-07-01",
	}
	if diff := cmp.Diff(want, documentMetadata(t, st, docID)); diff != "" {
		t.Errorf("Metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestFingerprintWithoutInventoryFallsBackToDocumentScope(t *testing.T) {
	ix, st, docID := newSidecarFixture(t)

	extract(t, ix, docID, `<DocumentMetadata>
  <MainDocument>
    <Fingerprint>
      <Hash>deadbeef==</Hash>
      <Algorithm>SHA-256</Algorithm>
    </Fingerprint>
  </MainDocument>
</DocumentMetadata>`)

	got := documentMetadata(t, st, docID)
	want := map[string]string{
		store.KeyFingerprint:          "deadbeef==",
		store.KeyFingerprintAlgorithm: "SHA-256",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Document-scope fingerprint mismatch (-want +got):\n%s", diff)
	}

	// The document-scope row still serves file lookups through the fallback.
	fileID, found, err := st.FindFileID(docID, "l1.pdf")
	if err != nil || !found {
		t.Fatalf("FindFileID failed: %v %v", found, err)
	}
	digest, _, found, err := st.Fingerprint(fileID)
	if err != nil || !found {
		t.Fatalf("Fingerprint lookup failed: %v %v", found, err)
	}
	if digest != "deadbeef==" {
		t.Errorf("Expected fallback digest, got %q", digest)
	}
}

func TestSubjectsNotDeduplicatedAcrossRoles(t *testing.T) {
	ix, st, docID := newSidecarFixture(t)

	// The same person appears under two roles: two subject rows, two variant
	// rows, two associations.
	extract(t, ix, docID, `<DocumentMetadata>
  <Roles>
    <Role type="author">
      <NaturalPerson><FirstName>Ada</FirstName><LastName>Rossi</LastName></NaturalPerson>
    </Role>
    <Role type="recipient">
      <NaturalPerson><FirstName>Ada</FirstName><LastName>Rossi</LastName></NaturalPerson>
    </Role>
  </Roles>
</DocumentMetadata>`)

	n, err := st.SubjectCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Expected 2 subject rows, got %d", n)
	}

	var associations int64
	if err := st.DB().QueryRow(
		"SELECT COUNT(*) FROM document_subject WHERE document_id = ?", docID,
	).Scan(&associations); err != nil {
		t.Fatal(err)
	}
	if associations != 2 {
		t.Errorf("Expected 2 associations, got %d", associations)
	}
}

func TestFlatDigitalAddressList(t *testing.T) {
	ix, st, docID := newSidecarFixture(t)

	extract(t, ix, docID, `<DocumentMetadata>
  <Roles>
    <Role type="sender">
      <LegalEntity>
        <Name>ACME SpA</Name>
        <DigitalAddress>info@acme.example</DigitalAddress>
        <DigitalAddress>acme@pec.example</DigitalAddress>
      </LegalEntity>
    </Role>
  </Roles>
</DocumentMetadata>`)

	var address string
	if err := st.DB().QueryRow("SELECT digital_address FROM legal_entity").Scan(&address); err != nil {
		t.Fatal(err)
	}
	if address != "info@acme.example,acme@pec.example" {
		t.Errorf("Flat list must flatten comma-joined, got %q", address)
	}
}

func TestProcedureAlternateTagName(t *testing.T) {
	ix, st, docID := newSidecarFixture(t)

	extract(t, ix, docID, `<DocumentMetadata>
  <Procedure>
    <Title>Permit review</Title>
    <Phase><Type>review</Type><StartDate>2024-05-01</StartDate><EndDate>2024-06-01</EndDate></Phase>
  </Procedure>
</DocumentMetadata>`)

	var title string
	if err := st.DB().QueryRow("SELECT title FROM administrative_procedure").Scan(&title); err != nil {
		t.Fatal(err)
	}
	if title != "Permit review" {
		t.Errorf("Expected procedure under alternate tag, got title %q", title)
	}

	var end string
	if err := st.DB().QueryRow("SELECT end_date FROM phase").Scan(&end); err != nil {
		t.Fatal(err)
	}
	if end != "2024-06-01" {
		t.Errorf("Expected end date stored, got %q", end)
	}
}
