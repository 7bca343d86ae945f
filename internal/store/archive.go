package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/logging"
)

// =============================================================================
// STRUCTURAL ROWS (manifest walk)
// =============================================================================

// InsertArchivalProcess records a top-level archival process UUID.
// Duplicate UUIDs across manifests are ignored.
func (s *ArchiveStore) InsertArchivalProcess(uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("INSERT OR IGNORE INTO archival_process (uuid) VALUES (?)", uuid)
	return err
}

// EnsureDocumentClass looks up a class by name and inserts it only if absent,
// returning the id either way. Class names are re-used across manifests.
func (s *ArchiveStore) EnsureDocumentClass(name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.db.QueryRow("SELECT id FROM document_class WHERE name = ?", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	res, err := s.db.Exec("INSERT INTO document_class (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("failed to insert document class %q: %w", name, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}
	logging.StoreDebug("Created document class %q (id=%d)", name, id)
	return id, nil
}

// InsertAIP records an archival information package. An empty process UUID is
// stored as NULL.
func (s *ArchiveStore) InsertAIP(uuid string, classID int64, processUUID, rootPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var proc interface{}
	if processUUID != "" {
		proc = processUUID
	}
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO aip (uuid, document_class_id, archival_process_uuid, root_path) VALUES (?, ?, ?, ?)",
		uuid, classID, proc, rootPath,
	)
	return err
}

// InsertDocument records a document keyed by (root_path, aip_uuid) and
// returns its id, existing or new.
func (s *ArchiveStore) InsertDocument(rootPath, aipUUID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		"INSERT OR IGNORE INTO document (root_path, aip_uuid) VALUES (?, ?)",
		rootPath, aipUUID,
	); err != nil {
		return 0, err
	}

	var id int64
	err := s.db.QueryRow(
		"SELECT id FROM document WHERE root_path = ? AND aip_uuid = ?",
		rootPath, aipUUID,
	).Scan(&id)
	return id, err
}

// InsertFile records a file keyed by (relative_path, document_id) and returns
// its id, existing or new.
func (s *ArchiveStore) InsertFile(relativePath, rootPath string, isMain bool, docID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	main := 0
	if isMain {
		main = 1
	}
	if _, err := s.db.Exec(
		"INSERT OR IGNORE INTO file (relative_path, root_path, is_main, document_id) VALUES (?, ?, ?, ?)",
		relativePath, rootPath, main, docID,
	); err != nil {
		return 0, err
	}

	var id int64
	err := s.db.QueryRow(
		"SELECT id FROM file WHERE relative_path = ? AND document_id = ?",
		relativePath, docID,
	).Scan(&id)
	return id, err
}

// FindFileID resolves a sidecar file reference to a file row of the document,
// matching the stored relative path with or without a leading "./".
func (s *ArchiveStore) FindFileID(docID int64, relativePath string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stripped := strings.TrimPrefix(relativePath, "./")
	var id int64
	err := s.db.QueryRow(
		"SELECT id FROM file WHERE document_id = ? AND (relative_path = ? OR relative_path = ? OR relative_path = ?)",
		docID, relativePath, stripped, "./"+stripped,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// FileByID loads a file row.
func (s *ArchiveStore) FileByID(fileID int64) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f := &File{}
	var main int
	err := s.db.QueryRow(
		"SELECT id, relative_path, root_path, is_main, document_id FROM file WHERE id = ?",
		fileID,
	).Scan(&f.ID, &f.RelativePath, &f.RootPath, &main, &f.DocumentID)
	if err != nil {
		return nil, err
	}
	f.IsMain = main != 0
	return f, nil
}

// =============================================================================
// METADATA
// =============================================================================

// AddMetadata stores one typed metadata value for a document, optionally
// scoped to a file. Blank values are rejected here as a last line of defense;
// the extractor's keep policy drops them earlier.
func (s *ArchiveStore) AddMetadata(docID int64, fileID *int64, key, value, typ string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("metadata %q: blank value", key)
	}
	if typ == "" {
		typ = "string"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var fid interface{}
	if fileID != nil {
		fid = *fileID
	}
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value, type, document_id, file_id) VALUES (?, ?, ?, ?, ?)",
		key, value, typ, docID, fid,
	)
	return err
}

// Fingerprint returns the stored digest and algorithm for a file, checking
// file scope first and falling back to document scope for older sidecar
// variants that lacked a file inventory.
func (s *ArchiveStore) Fingerprint(fileID int64) (digest, algorithm string, found bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docID int64
	if err = s.db.QueryRow("SELECT document_id FROM file WHERE id = ?", fileID).Scan(&docID); err != nil {
		if err == sql.ErrNoRows {
			return "", "", false, nil
		}
		return "", "", false, err
	}

	digest, ok, err := s.metadataValue(docID, &fileID, KeyFingerprint)
	if err != nil {
		return "", "", false, err
	}
	scopedFile := ok
	if !ok {
		digest, ok, err = s.metadataValue(docID, nil, KeyFingerprint)
		if err != nil || !ok {
			return "", "", false, err
		}
	}

	var fidScope *int64
	if scopedFile {
		fidScope = &fileID
	}
	algorithm, _, err = s.metadataValue(docID, fidScope, KeyFingerprintAlgorithm)
	if err != nil {
		return "", "", false, err
	}
	return digest, algorithm, true, nil
}

func (s *ArchiveStore) metadataValue(docID int64, fileID *int64, key string) (string, bool, error) {
	var value string
	var err error
	if fileID != nil {
		err = s.db.QueryRow(
			"SELECT value FROM metadata WHERE document_id = ? AND file_id = ? AND key = ? ORDER BY id LIMIT 1",
			docID, *fileID, key,
		).Scan(&value)
	} else {
		err = s.db.QueryRow(
			"SELECT value FROM metadata WHERE document_id = ? AND file_id IS NULL AND key = ? ORDER BY id LIMIT 1",
			docID, key,
		).Scan(&value)
	}
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// ClearDocumentExtraction removes everything a sidecar extraction wrote for
// one document: metadata, subjects with their variant rows and associations,
// and the document's procedures with their phases and aggregations.
// Extraction is wipe-then-rewrite per document, so re-running over an
// unchanged package keeps row counts identical.
func (s *ArchiveStore) ClearDocumentExtraction(docID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM metadata WHERE document_id = ?", docID); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}

	// Variant rows go first while the associations still identify them; the
	// bare subject rows last, after the associations release them.
	variants := []string{
		"natural_person",
		"legal_entity",
		"internal_public_administration",
		"external_public_administration",
		"other_subject",
		"qualified_system",
	}
	for _, table := range variants {
		if _, err := s.db.Exec(
			"DELETE FROM "+table+" WHERE id IN (SELECT subject_id FROM document_subject WHERE document_id = ?)",
			docID,
		); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	rows, err := s.db.Query("SELECT subject_id FROM document_subject WHERE document_id = ?", docID)
	if err != nil {
		return err
	}
	var subjectIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		subjectIDs = append(subjectIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	if _, err := s.db.Exec("DELETE FROM document_subject WHERE document_id = ?", docID); err != nil {
		return fmt.Errorf("failed to clear subject associations: %w", err)
	}
	for _, id := range subjectIDs {
		if _, err := s.db.Exec("DELETE FROM subject WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to clear subject %d: %w", id, err)
		}
	}

	if _, err := s.db.Exec("UPDATE document SET aggregation_id = NULL WHERE id = ?", docID); err != nil {
		return fmt.Errorf("failed to reset aggregation link: %w", err)
	}
	if _, err := s.db.Exec(
		"DELETE FROM phase WHERE procedure_id IN (SELECT id FROM administrative_procedure WHERE document_id = ?)",
		docID,
	); err != nil {
		return fmt.Errorf("failed to clear phases: %w", err)
	}
	if _, err := s.db.Exec(
		"DELETE FROM document_aggregation WHERE procedure_id IN (SELECT id FROM administrative_procedure WHERE document_id = ?)",
		docID,
	); err != nil {
		return fmt.Errorf("failed to clear aggregations: %w", err)
	}
	if _, err := s.db.Exec("DELETE FROM administrative_procedure WHERE document_id = ?", docID); err != nil {
		return fmt.Errorf("failed to clear procedures: %w", err)
	}
	return nil
}

// =============================================================================
// SUBJECTS
// =============================================================================

func (s *ArchiveStore) newSubject() (int64, error) {
	res, err := s.db.Exec("INSERT INTO subject DEFAULT VALUES")
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AddNaturalPerson creates a subject with natural-person details.
func (s *ArchiveStore) AddNaturalPerson(p NaturalPerson) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.newSubject()
	if err != nil {
		return 0, err
	}
	_, err = s.db.Exec(
		"INSERT INTO natural_person (id, first_name, last_name, tax_code, digital_address, role) VALUES (?, ?, ?, ?, ?, ?)",
		id, p.FirstName, p.LastName, p.TaxCode, p.DigitalAddress, p.Role,
	)
	return id, err
}

// AddLegalEntity creates a subject with legal-entity details.
func (s *ArchiveStore) AddLegalEntity(e LegalEntity) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.newSubject()
	if err != nil {
		return 0, err
	}
	_, err = s.db.Exec(
		"INSERT INTO legal_entity (id, name, tax_code, digital_address, role) VALUES (?, ?, ?, ?, ?)",
		id, e.Name, e.TaxCode, e.DigitalAddress, e.Role,
	)
	return id, err
}

// AddInternalPA creates a subject for an internal public administration.
func (s *ArchiveStore) AddInternalPA(a InternalPublicAdministration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.newSubject()
	if err != nil {
		return 0, err
	}
	_, err = s.db.Exec(
		"INSERT INTO internal_public_administration (id, name, admin_code, office, digital_address, role) VALUES (?, ?, ?, ?, ?, ?)",
		id, a.Name, a.AdminCode, a.Office, a.DigitalAddress, a.Role,
	)
	return id, err
}

// AddExternalPA creates a subject for an external public administration.
func (s *ArchiveStore) AddExternalPA(a ExternalPublicAdministration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.newSubject()
	if err != nil {
		return 0, err
	}
	_, err = s.db.Exec(
		"INSERT INTO external_public_administration (id, name, admin_code, digital_address, role) VALUES (?, ?, ?, ?, ?)",
		id, a.Name, a.AdminCode, a.DigitalAddress, a.Role,
	)
	return id, err
}

// AddOtherSubject creates a subject of the catch-all variant.
func (s *ArchiveStore) AddOtherSubject(o OtherSubject) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.newSubject()
	if err != nil {
		return 0, err
	}
	_, err = s.db.Exec(
		"INSERT INTO other_subject (id, description, digital_address, role) VALUES (?, ?, ?, ?)",
		id, o.Description, o.DigitalAddress, o.Role,
	)
	return id, err
}

// AddQualifiedSystem creates a subject for an automated qualified system.
func (s *ArchiveStore) AddQualifiedSystem(q QualifiedSystem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.newSubject()
	if err != nil {
		return 0, err
	}
	_, err = s.db.Exec(
		"INSERT INTO qualified_system (id, name, role) VALUES (?, ?, ?)",
		id, q.Name, q.Role,
	)
	return id, err
}

// AssociateSubject links a subject to a document, ignoring duplicates.
func (s *ArchiveStore) AssociateSubject(docID, subjectID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO document_subject (document_id, subject_id) VALUES (?, ?)",
		docID, subjectID,
	)
	return err
}

// SubjectCount reports the number of subject rows (test support).
func (s *ArchiveStore) SubjectCount() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM subject").Scan(&n)
	return n, err
}

// =============================================================================
// PROCEDURES, PHASES, AGGREGATIONS
// =============================================================================

// AddProcedure records an administrative procedure and returns its id.
func (s *ArchiveStore) AddProcedure(p AdministrativeProcedure) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc interface{}
	if p.DocumentID != 0 {
		doc = p.DocumentID
	}
	res, err := s.db.Exec(
		"INSERT INTO administrative_procedure (catalog_uri, title, subject_of_interest, document_id) VALUES (?, ?, ?, ?)",
		p.CatalogURI, p.Title, p.SubjectOfInterest, doc,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AddPhase records a procedure phase. Callers guarantee type and start date
// are non-empty; the extractor drops phases missing either.
func (s *ArchiveStore) AddPhase(p Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var end interface{}
	if p.EndDate != "" {
		end = p.EndDate
	}
	_, err := s.db.Exec(
		"INSERT INTO phase (type, start_date, end_date, procedure_id) VALUES (?, ?, ?, ?)",
		p.Type, p.StartDate, end, p.ProcedureID,
	)
	return err
}

// AddAggregation records a document aggregation and returns its id.
func (s *ArchiveStore) AddAggregation(procedureID *int64, typ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pid interface{}
	if procedureID != nil {
		pid = *procedureID
	}
	res, err := s.db.Exec(
		"INSERT INTO document_aggregation (procedure_id, type) VALUES (?, ?)",
		pid, typ,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SetDocumentAggregation back-updates the owning document's aggregation id.
func (s *ArchiveStore) SetDocumentAggregation(docID, aggregationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("UPDATE document SET aggregation_id = ? WHERE id = ?", aggregationID, docID)
	return err
}

// =============================================================================
// SEMANTIC PASS SUPPORT
// =============================================================================

// SemanticDocuments returns every document with its class name and metadata
// values in insertion order, the raw material for per-document text assembly.
func (s *ArchiveStore) SemanticDocuments() ([]SemanticDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT d.id, dc.name
		FROM document d
		JOIN aip a ON d.aip_uuid = a.uuid
		JOIN document_class dc ON a.document_class_id = dc.id
		ORDER BY d.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []SemanticDocument
	for rows.Next() {
		var doc SemanticDocument
		if err := rows.Scan(&doc.ID, &doc.ClassName); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range docs {
		values, err := s.metadataValues(docs[i].ID)
		if err != nil {
			return nil, err
		}
		docs[i].Values = values
	}
	return docs, nil
}

func (s *ArchiveStore) metadataValues(docID int64) ([]string, error) {
	// Fingerprint rows are integrity bookkeeping, not document content; a
	// document-scoped digest from the degraded fallback must not leak base64
	// into the search text.
	rows, err := s.db.Query(
		"SELECT value FROM metadata WHERE document_id = ? AND file_id IS NULL AND key NOT IN (?, ?) ORDER BY id",
		docID, KeyFingerprint, KeyFingerprintAlgorithm,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// =============================================================================
// INTEGRITY RESULTS
// =============================================================================

// SaveIntegrityResult persists a verification outcome for later display
// without recomputation.
func (s *ArchiveStore) SaveIntegrityResult(r IntegrityResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	valid := 0
	if r.Valid {
		valid = 1
	}
	_, err := s.db.Exec(
		"INSERT INTO integrity_check (file_id, valid, expected_digest, actual_digest, algorithm) VALUES (?, ?, ?, ?, ?)",
		r.FileID, valid, r.ExpectedDigest, r.ActualDigest, r.Algorithm,
	)
	return err
}

// LatestIntegrityResult returns the most recent verification outcome for a
// file, if any.
func (s *ArchiveStore) LatestIntegrityResult(fileID int64) (*IntegrityResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := &IntegrityResult{}
	var valid int
	err := s.db.QueryRow(
		`SELECT id, file_id, valid, expected_digest, actual_digest, algorithm, checked_at
		 FROM integrity_check WHERE file_id = ? ORDER BY id DESC LIMIT 1`,
		fileID,
	).Scan(&r.ID, &r.FileID, &valid, &r.ExpectedDigest, &r.ActualDigest, &r.Algorithm, &r.CheckedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Valid = valid != 0
	return r, nil
}
