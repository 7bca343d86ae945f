package indexer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/logging"
)

// ErrManifestNotFound is returned when the root directory holds no file
// matching a recognized manifest name.
var ErrManifestNotFound = errors.New("indexer: no manifest file found")

var manifestPattern = regexp.MustCompile(`(?i)^(dip[-_]?)?(index|manifest)(_\d+)?\.xml$`)

// FindManifest scans the root directory (non-recursively) for the package
// manifest. The first match in lexical order wins.
func FindManifest(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("failed to read archive root: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if manifestPattern.MatchString(entry.Name()) {
			return filepath.Join(root, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrManifestNotFound, root)
}

// =============================================================================
// SCHEMA-TOLERANT ELEMENT ACCESS
// =============================================================================

// Manifests and sidecars exist in several historical schema revisions that
// renamed elements without changing structure. Every lookup therefore takes a
// candidate list and returns the first present match.

func firstChild(e *etree.Element, names ...string) *etree.Element {
	for _, name := range names {
		if c := e.SelectElement(name); c != nil {
			return c
		}
	}
	return nil
}

func childrenNamed(e *etree.Element, names ...string) []*etree.Element {
	for _, name := range names {
		if cs := e.SelectElements(name); len(cs) > 0 {
			return cs
		}
	}
	return nil
}

func childText(e *etree.Element, names ...string) string {
	if c := firstChild(e, names...); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

func attrOrChild(e *etree.Element, names ...string) string {
	for _, name := range names {
		if a := e.SelectAttr(name); a != nil && strings.TrimSpace(a.Value) != "" {
			return strings.TrimSpace(a.Value)
		}
	}
	return childText(e, names...)
}

// canonicalUUID lowercases and reformats a parseable UUID; references that do
// not parse (some packagers emit bare identifiers here) pass through trimmed
// so lookups still key consistently.
func canonicalUUID(s string) string {
	s = strings.TrimSpace(s)
	if id, err := uuid.Parse(s); err == nil {
		return id.String()
	}
	return s
}

// =============================================================================
// STRUCTURAL WALK
// =============================================================================

// sidecarRef is a pending metadata extraction noted during the walk.
type sidecarRef struct {
	docID   int64
	docRoot string
	relPath string
}

// buildStructure walks DocumentClass -> AiP -> Document -> Files and inserts
// the structural rows. Per-class, per-AiP and per-document failures are
// logged and their siblings continue; only the caller's parse errors are
// fatal. Returns the sidecar references to extract afterwards.
func (ix *Indexer) buildStructure(manifest *etree.Element, stats *RunStats) []sidecarRef {
	defaultProcess := ""
	for _, proc := range childrenNamed(manifest, "ArchivalProcess", "Process") {
		procUUID := canonicalUUID(attrOrChild(proc, "uuid", "UUID"))
		if procUUID == "" {
			continue
		}
		if err := ix.store.InsertArchivalProcess(procUUID); err != nil {
			logging.Get(logging.CategoryIndexer).Error("Failed to insert archival process %s: %v", procUUID, err)
			stats.Failures++
			continue
		}
		if defaultProcess == "" {
			defaultProcess = procUUID
		}
	}

	var sidecars []sidecarRef
	for _, classEl := range childrenNamed(manifest, "DocumentClass", "Class") {
		name := attrOrChild(classEl, "name", "Name")
		if name == "" {
			logging.Get(logging.CategoryIndexer).Warn("Skipping document class without a name")
			stats.Failures++
			continue
		}
		classID, err := ix.store.EnsureDocumentClass(name)
		if err != nil {
			logging.Get(logging.CategoryIndexer).Error("Failed to ensure document class %q: %v", name, err)
			stats.Failures++
			continue
		}
		stats.Classes++

		for _, aipEl := range childrenNamed(classEl, "AiP", "AIP", "Aip") {
			sidecars = append(sidecars, ix.buildAIP(aipEl, classID, defaultProcess, stats)...)
		}
	}
	return sidecars
}

func (ix *Indexer) buildAIP(aipEl *etree.Element, classID int64, defaultProcess string, stats *RunStats) []sidecarRef {
	aipUUID := canonicalUUID(attrOrChild(aipEl, "uuid", "UUID"))
	if aipUUID == "" {
		logging.Get(logging.CategoryIndexer).Warn("Skipping AiP without a uuid")
		stats.Failures++
		return nil
	}
	aipRoot := NormalizePath(childText(aipEl, "AiPRoot", "Root", "RootPath"))

	processUUID := canonicalUUID(attrOrChild(aipEl, "process", "ArchivalProcessUUID"))
	if processUUID == "" {
		processUUID = defaultProcess
	}

	if err := ix.store.InsertAIP(aipUUID, classID, processUUID, aipRoot); err != nil {
		logging.Get(logging.CategoryIndexer).Error("Failed to insert AiP %s: %v", aipUUID, err)
		stats.Failures++
		return nil
	}
	stats.AIPs++

	var sidecars []sidecarRef
	for _, docEl := range childrenNamed(aipEl, "Document", "Doc") {
		ref, ok := ix.buildDocument(docEl, aipUUID, aipRoot, stats)
		if ok && ref.relPath != "" {
			sidecars = append(sidecars, ref)
		}
	}
	return sidecars
}

// buildDocument inserts the document row and its file rows. The returned
// sidecarRef carries the Metadata entry's path when the document has one.
func (ix *Indexer) buildDocument(docEl *etree.Element, aipUUID, aipRoot string, stats *RunStats) (sidecarRef, bool) {
	docPath := NormalizePath(attrOrChild(docEl, "DocumentPath", "Path"))
	docRoot := joinSlash(aipRoot, docPath)
	if docRoot == "" {
		logging.Get(logging.CategoryIndexer).Warn("Skipping document without a path in AiP %s", aipUUID)
		stats.Failures++
		return sidecarRef{}, false
	}

	docID, err := ix.store.InsertDocument(docRoot, aipUUID)
	if err != nil {
		logging.Get(logging.CategoryIndexer).Error("Failed to insert document %s: %v", docRoot, err)
		stats.Failures++
		return sidecarRef{}, false
	}
	stats.Documents++

	files := firstChild(docEl, "Files", "FileList")
	if files == nil {
		return sidecarRef{docID: docID, docRoot: docRoot}, true
	}

	insert := func(rel string, isMain bool) {
		rel = NormalizePath(rel)
		if rel == "" {
			return
		}
		if _, err := ix.store.InsertFile(rel, joinSlash(docRoot, rel), isMain, docID); err != nil {
			logging.Get(logging.CategoryIndexer).Error("Failed to insert file %s for document %d: %v", rel, docID, err)
			stats.Failures++
			return
		}
		stats.Files++
	}

	if primary := childText(files, "Primary", "Main"); primary != "" {
		insert(primary, true)
	}
	if attachments := firstChild(files, "Attachments"); attachments != nil {
		for _, att := range childrenNamed(attachments, "Attachment", "File") {
			insert(strings.TrimSpace(att.Text()), false)
		}
	}

	return sidecarRef{
		docID:   docID,
		docRoot: docRoot,
		relPath: NormalizePath(childText(files, "Metadata", "MetadataFile")),
	}, true
}
