package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// MaxEntrySize bounds a single extracted file. Monthly detail reports stay
// well under it; anything larger is treated as a corrupt archive.
const MaxEntrySize int64 = 512 << 20

// IsReportArchive reports whether name is something the provider drop
// carries: a zip archive or a bare xlsx report.
func IsReportArchive(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".zip" || ext == ".xlsx"
}

// junkEntry reports archive members that are never reports: macOS resource
// forks, Finder metadata and Office lock files.
func junkEntry(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") {
		return true
	}
	base := path.Base(name)
	return base == ".DS_Store" || strings.HasPrefix(base, "~$")
}

// ExtractZIP unpacks a provider archive into destDir and returns the paths
// of the files written, in archive order. Directory structure is kept.
// Junk members are skipped.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		if junkEntry(f.Name) {
			continue
		}
		dest, err := entryPath(destDir, f.Name)
		if err != nil {
			return extracted, err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return extracted, eris.Wrapf(err, "zip: create directory %s", f.Name)
			}
			continue
		}
		if f.UncompressedSize64 > uint64(MaxEntrySize) {
			return extracted, eris.Errorf("zip: entry %q is %d bytes, over the %d byte limit",
				f.Name, f.UncompressedSize64, MaxEntrySize)
		}
		if err := writeEntry(f, dest); err != nil {
			return extracted, err
		}
		extracted = append(extracted, dest)
	}

	return extracted, nil
}

// entryPath resolves an archive member under destDir, rejecting members
// that would land outside it (zip slip).
func entryPath(destDir, name string) (string, error) {
	dest := filepath.Join(destDir, filepath.FromSlash(name))
	root := filepath.Clean(destDir) + string(os.PathSeparator)
	if !strings.HasPrefix(dest+string(os.PathSeparator), root) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", name)
	}
	return dest, nil
}

// writeEntry copies one member to dest through a .part file so a failed
// extraction never leaves a truncated report behind.
func writeEntry(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return eris.Wrapf(err, "zip: create parent directory for %s", f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "zip: create %s", tmp)
	}

	// The header size can lie; the limit also applies to what is actually read.
	n, err := io.Copy(out, io.LimitReader(rc, MaxEntrySize+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxEntrySize {
		err = eris.Errorf("zip: entry %q exceeds the %d byte limit", f.Name, MaxEntrySize)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "zip: write %s", f.Name)
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "zip: rename %s", tmp)
	}
	return nil
}
