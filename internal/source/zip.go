// Package source provides the glue collaborators around the core: archive
// extraction and delimited-text decoding of the claim extracts.
package source

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIP extracts an archive into destDir/<archive-stem>, replacing any
// prior extraction of the same archive name, and returns the working
// directory. Re-extraction is idempotent per archive.
func ExtractZIP(zipPath, destDir string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(zipPath), filepath.Ext(zipPath))
	workDir := filepath.Join(destDir, stem)

	if err := os.RemoveAll(workDir); err != nil {
		return "", eris.Wrapf(err, "zip: clear workdir %s", workDir)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", eris.Wrapf(err, "zip: create workdir %s", workDir)
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrapf(err, "zip: open archive %s", zipPath)
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if err := extractEntry(f, workDir); err != nil {
			return "", err
		}
	}
	return workDir, nil
}

// extractEntry extracts a single zip.File, refusing paths that escape the
// destination (zip slip).
func extractEntry(f *zip.File, destDir string) error {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(destPath, 0o755); err != nil {
			return eris.Wrap(err, "zip: create directory")
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return eris.Wrap(err, "zip: write file")
	}
	return nil
}

// DiscoverArchives lists *.zip files in dir sorted lexicographically by
// name; batches are always processed in this order.
func DiscoverArchives(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.zip"))
	if err != nil {
		return nil, eris.Wrapf(err, "zip: scan %s", dir)
	}
	// filepath.Glob returns sorted paths already; keep the guarantee local.
	return matches, nil
}

// FindKindFile returns the first file in dir matching <prefix>*.csv
// (extension case-insensitive), or empty when the kind is absent from the
// batch.
func FindKindFile(dir, prefix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrapf(err, "source: read dir %s", dir)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.EqualFold(filepath.Ext(name), ".csv") {
			return filepath.Join(dir, name), nil
		}
	}
	return "", nil
}
