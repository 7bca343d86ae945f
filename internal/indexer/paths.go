package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizePath canonicalizes a manifest or sidecar path reference: NFC
// normalization, backslashes to slashes, leading "./" stripped, duplicate and
// edge slashes collapsed. The result is a clean slash-separated relative path.
func NormalizePath(p string) string {
	p = norm.NFC.String(p)
	p = strings.ReplaceAll(p, "\\", "/")

	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		out = append(out, part)
	}
	return strings.Join(out, "/")
}

// joinSlash joins already-normalized path segments, skipping empty ones.
func joinSlash(segments ...string) string {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return strings.Join(out, "/")
}

// ResolvePath maps a package-relative reference to an existing file under
// root. The normalized composition is tried first; when the filesystem does
// not have it (case differences between manifest and disk are common), each
// component is re-matched case-insensitively against the actual directory
// listing.
func ResolvePath(root, rel string) (string, error) {
	rel = NormalizePath(rel)
	if rel == "" {
		return "", fmt.Errorf("empty path reference")
	}

	direct := filepath.Join(root, filepath.FromSlash(rel))
	if _, err := os.Stat(direct); err == nil {
		return direct, nil
	}

	cur := root
	for _, component := range strings.Split(rel, "/") {
		entries, err := os.ReadDir(cur)
		if err != nil {
			return "", fmt.Errorf("failed to scan %s: %w", cur, err)
		}
		matched := ""
		for _, entry := range entries {
			if strings.EqualFold(entry.Name(), component) {
				matched = entry.Name()
				break
			}
		}
		if matched == "" {
			return "", fmt.Errorf("no entry matching %q under %s", component, cur)
		}
		cur = filepath.Join(cur, matched)
	}
	return cur, nil
}
