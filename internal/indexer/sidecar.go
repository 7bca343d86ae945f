package indexer

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/logging"
	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/store"
)

// =============================================================================
// DECLARATIVE FIELD EXTRACTION
// =============================================================================

// fieldSpec maps candidate element paths to one metadata key. Paths are tried
// in order against the sidecar root; the first non-blank text wins. Declared
// types are advisory and never validated.
type fieldSpec struct {
	key   string
	typ   string
	paths []string
}

var sidecarFields = []fieldSpec{
	{key: "identifier", typ: "string", paths: []string{"Identifier", "DocumentID", "General/Identifier"}},
	{key: "object_type", typ: "string", paths: []string{"ObjectType", "DocumentType", "General/ObjectType"}},
	{key: "description", typ: "string", paths: []string{"Description", "Subject", "General/Description"}},
	{key: "creation_date", typ: "date", paths: []string{"CreationDate", "Created", "Dates/Creation"}},
	{key: "registration_date", typ: "date", paths: []string{"RegistrationDate", "Dates/Registration"}},
	{key: "protocol_number", typ: "number", paths: []string{"ProtocolNumber", "Registration/Number"}},
	{key: "classification", typ: "string", paths: []string{"Classification", "ClassificationCode"}},
	{key: "producer", typ: "string", paths: []string{"Producer", "Origin/Producer"}},
}

// keepValue is the single silent-drop policy for sidecar values: trim, then
// reject blank. Dropped values are a non-event, not an error.
func keepValue(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}

func textAtPath(root *etree.Element, path string) string {
	el := root
	for _, step := range strings.Split(path, "/") {
		el = firstChild(el, step)
		if el == nil {
			return ""
		}
	}
	return el.Text()
}

// =============================================================================
// SIDECAR EXTRACTION
// =============================================================================

// extractSidecar parses one document's metadata sidecar and enriches the
// store. A parse failure is fatal to this document only; every extraction
// step past parsing is best-effort. Extraction is wipe-then-rewrite: the
// document's previously extracted rows are cleared first, so re-indexing an
// unchanged package never duplicates metadata, subjects or procedures.
func (ix *Indexer) extractSidecar(docID int64, path string) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return fmt.Errorf("failed to parse sidecar %s: %w", path, err)
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("sidecar %s has no root element", path)
	}

	if err := ix.store.ClearDocumentExtraction(docID); err != nil {
		return fmt.Errorf("failed to reset extraction for document %d: %w", docID, err)
	}

	ix.extractFields(docID, root)
	ix.extractFingerprints(docID, root)
	ix.extractSubjects(docID, root)
	ix.extractProcedure(docID, root)
	return nil
}

func (ix *Indexer) extractFields(docID int64, root *etree.Element) {
	for _, field := range sidecarFields {
		for _, path := range field.paths {
			value, ok := keepValue(textAtPath(root, path))
			if !ok {
				continue
			}
			if err := ix.store.AddMetadata(docID, nil, field.key, value, field.typ); err != nil {
				logging.Get(logging.CategoryMetadata).Warn("Failed to store %s for document %d: %v", field.key, docID, err)
			}
			break
		}
	}
}

// =============================================================================
// FINGERPRINTS
// =============================================================================

type fingerprint struct {
	hash      string
	algorithm string
}

// extractFingerprints builds a {file-UUID -> fingerprint} map from the main
// document's and each attachment's fingerprint block, then resolves UUIDs to
// file rows through the inventory block. Sidecars predating the inventory get
// the main hash once at document scope instead.
func (ix *Indexer) extractFingerprints(docID int64, root *etree.Element) {
	byUUID := map[string]fingerprint{}
	mainPrint := fingerprint{}

	collect := func(block *etree.Element, isMain bool) {
		if block == nil {
			return
		}
		for _, fpEl := range childrenNamed(block, "Fingerprint", "CryptographicFingerprint") {
			hash, ok := keepValue(childText(fpEl, "Hash", "Value", "Digest"))
			if !ok {
				continue
			}
			algo, _ := keepValue(childText(fpEl, "Algorithm", "Algo"))
			fp := fingerprint{hash: hash, algorithm: algo}
			if isMain && mainPrint.hash == "" {
				mainPrint = fp
			}
			if ref := canonicalUUID(attrOrChild(fpEl, "FileRef", "FileUUID", "uuid")); ref != "" {
				byUUID[ref] = fp
			}
		}
	}

	collect(firstChild(root, "MainDocument", "Main"), true)
	if atts := firstChild(root, "Attachments"); atts != nil {
		for _, att := range childrenNamed(atts, "Attachment", "File") {
			collect(att, false)
		}
	}

	inventory := ix.fileInventory(root)
	if len(inventory) == 0 {
		// Degraded fallback for older schema variants without an inventory.
		if mainPrint.hash != "" {
			ix.writeFingerprint(docID, nil, mainPrint)
		}
		return
	}

	for ref, fp := range byUUID {
		name, ok := inventory[ref]
		if !ok {
			logging.Get(logging.CategoryMetadata).Warn("Fingerprint references unknown file %s in document %d", ref, docID)
			continue
		}
		fileID, found, err := ix.store.FindFileID(docID, name)
		if err != nil || !found {
			logging.Get(logging.CategoryMetadata).Warn("No file row for %q in document %d (err=%v)", name, docID, err)
			continue
		}
		ix.writeFingerprint(docID, &fileID, fp)
	}
}

// fileInventory maps file UUIDs to the local names the manifest used.
func (ix *Indexer) fileInventory(root *etree.Element) map[string]string {
	block := firstChild(root, "FileInventory", "Inventory")
	if block == nil {
		return nil
	}
	inventory := map[string]string{}
	for _, file := range childrenNamed(block, "File", "Entry") {
		ref := canonicalUUID(attrOrChild(file, "uuid", "UUID"))
		name, ok := keepValue(childText(file, "Name", "FileName"))
		if ref == "" || !ok {
			continue
		}
		inventory[ref] = name
	}
	return inventory
}

func (ix *Indexer) writeFingerprint(docID int64, fileID *int64, fp fingerprint) {
	if err := ix.store.AddMetadata(docID, fileID, store.KeyFingerprint, fp.hash, "string"); err != nil {
		logging.Get(logging.CategoryMetadata).Warn("Failed to store fingerprint for document %d: %v", docID, err)
		return
	}
	if fp.algorithm != "" {
		if err := ix.store.AddMetadata(docID, fileID, store.KeyFingerprintAlgorithm, fp.algorithm, "string"); err != nil {
			logging.Get(logging.CategoryMetadata).Warn("Failed to store fingerprint algorithm for document %d: %v", docID, err)
		}
	}
}

// =============================================================================
// SUBJECTS
// =============================================================================

// extractSubjects walks the roles block. Every variant match creates a fresh
// subject row and an association; subjects are never de-duplicated across
// roles.
func (ix *Indexer) extractSubjects(docID int64, root *etree.Element) {
	roles := firstChild(root, "Roles", "Subjects")
	if roles == nil {
		return
	}
	for _, roleEl := range childrenNamed(roles, "Role", "Subject") {
		role, _ := keepValue(attrOrChild(roleEl, "type", "Type"))

		for _, el := range roleEl.SelectElements("NaturalPerson") {
			id, err := ix.store.AddNaturalPerson(store.NaturalPerson{
				FirstName:      childText(el, "FirstName", "GivenName"),
				LastName:       childText(el, "LastName", "FamilyName"),
				TaxCode:        childText(el, "TaxCode", "FiscalCode"),
				DigitalAddress: digitalAddresses(el),
				Role:           role,
			})
			ix.associateSubject(docID, id, err, "natural person")
		}
		for _, el := range roleEl.SelectElements("LegalEntity") {
			id, err := ix.store.AddLegalEntity(store.LegalEntity{
				Name:           childText(el, "Name", "Denomination"),
				TaxCode:        childText(el, "TaxCode", "FiscalCode"),
				DigitalAddress: digitalAddresses(el),
				Role:           role,
			})
			ix.associateSubject(docID, id, err, "legal entity")
		}
		for _, el := range roleEl.SelectElements("InternalPublicAdministration") {
			id, err := ix.store.AddInternalPA(store.InternalPublicAdministration{
				Name:           childText(el, "Name", "Denomination"),
				AdminCode:      childText(el, "AdminCode", "IPACode"),
				Office:         childText(el, "Office", "OrganizationalUnit"),
				DigitalAddress: digitalAddresses(el),
				Role:           role,
			})
			ix.associateSubject(docID, id, err, "internal PA")
		}
		for _, el := range roleEl.SelectElements("ExternalPublicAdministration") {
			id, err := ix.store.AddExternalPA(store.ExternalPublicAdministration{
				Name:           childText(el, "Name", "Denomination"),
				AdminCode:      childText(el, "AdminCode", "IPACode"),
				DigitalAddress: digitalAddresses(el),
				Role:           role,
			})
			ix.associateSubject(docID, id, err, "external PA")
		}
		for _, el := range roleEl.SelectElements("OtherSubject") {
			id, err := ix.store.AddOtherSubject(store.OtherSubject{
				Description:    childText(el, "Description", "Name"),
				DigitalAddress: digitalAddresses(el),
				Role:           role,
			})
			ix.associateSubject(docID, id, err, "other subject")
		}
		for _, el := range roleEl.SelectElements("QualifiedSystem") {
			id, err := ix.store.AddQualifiedSystem(store.QualifiedSystem{
				Name: childText(el, "Name", "SystemName"),
				Role: role,
			})
			ix.associateSubject(docID, id, err, "qualified system")
		}
	}
}

func (ix *Indexer) associateSubject(docID, subjectID int64, err error, variant string) {
	if err != nil {
		logging.Get(logging.CategoryMetadata).Warn("Failed to store %s for document %d: %v", variant, docID, err)
		return
	}
	if err := ix.store.AssociateSubject(docID, subjectID); err != nil {
		logging.Get(logging.CategoryMetadata).Warn("Failed to associate subject %d with document %d: %v", subjectID, docID, err)
	}
}

// digitalAddresses flattens a subject's addresses into one comma-joined
// string. Two shapes occur: a structured block with Email and PEC lists, or a
// flat repeated DigitalAddress element.
func digitalAddresses(subject *etree.Element) string {
	var addrs []string
	appendKept := func(s string) {
		if v, ok := keepValue(s); ok {
			addrs = append(addrs, v)
		}
	}

	if block := firstChild(subject, "DigitalAddresses", "Addresses"); block != nil {
		for _, el := range block.SelectElements("Email") {
			appendKept(el.Text())
		}
		for _, el := range block.SelectElements("PEC") {
			appendKept(el.Text())
		}
	} else {
		for _, el := range subject.SelectElements("DigitalAddress") {
			appendKept(el.Text())
		}
	}
	return strings.Join(addrs, ",")
}

// =============================================================================
// PROCEDURES, PHASES, AGGREGATION
// =============================================================================

// extractProcedure handles the procedure block (two accepted tag names). The
// block unconditionally yields one procedure row; phases need a non-empty
// type and start date; an aggregation sub-block back-updates the document.
func (ix *Indexer) extractProcedure(docID int64, root *etree.Element) {
	block := firstChild(root, "AdministrativeProcedure", "Procedure")
	if block == nil {
		return
	}

	procID, err := ix.store.AddProcedure(store.AdministrativeProcedure{
		CatalogURI:        childText(block, "CatalogURI", "Catalog"),
		Title:             childText(block, "Title"),
		SubjectOfInterest: childText(block, "SubjectOfInterest", "Subject"),
		DocumentID:        docID,
	})
	if err != nil {
		logging.Get(logging.CategoryMetadata).Warn("Failed to store procedure for document %d: %v", docID, err)
		return
	}

	for _, phaseEl := range childrenNamed(block, "Phase") {
		phaseType, okType := keepValue(childText(phaseEl, "Type", "PhaseType"))
		start, okStart := keepValue(childText(phaseEl, "StartDate", "Start"))
		if !okType || !okStart {
			continue
		}
		end, _ := keepValue(childText(phaseEl, "EndDate", "End"))
		if err := ix.store.AddPhase(store.Phase{
			Type:        phaseType,
			StartDate:   start,
			EndDate:     end,
			ProcedureID: procID,
		}); err != nil {
			logging.Get(logging.CategoryMetadata).Warn("Failed to store phase for procedure %d: %v", procID, err)
		}
	}

	if aggEl := firstChild(block, "Aggregation", "DocumentAggregation"); aggEl != nil {
		aggType, _ := keepValue(attrOrChild(aggEl, "type", "Type"))
		aggID, err := ix.store.AddAggregation(&procID, aggType)
		if err != nil {
			logging.Get(logging.CategoryMetadata).Warn("Failed to store aggregation for document %d: %v", docID, err)
			return
		}
		if err := ix.store.SetDocumentAggregation(docID, aggID); err != nil {
			logging.Get(logging.CategoryMetadata).Warn("Failed to link aggregation %d to document %d: %v", aggID, docID, err)
		}
	}
}
