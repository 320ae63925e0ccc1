// Package archive extracts zip payloads onto an afero filesystem.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrPathTraversal is returned for entries that would land outside the destination.
var ErrPathTraversal = errors.New("zip entry escapes destination")

// IsZip reports whether the file at p opens as a zip archive.
func IsZip(fs afero.Fs, p string) bool {
	r, closer, err := open(fs, p)
	if err != nil {
		return false
	}
	defer closer.Close()
	return r != nil
}

func open(fs afero.Fs, p string) (*zip.Reader, io.Closer, error) {
	f, err := fs.Open(p)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	r, err := zip.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("reading zip %s: %w", p, err)
	}
	return r, f, nil
}

// entryPath returns the slash-separated relative target of name, or an
// error when name is absolute or climbs out of the archive root.
func entryPath(name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) || (len(name) > 1 && name[1] == ':') {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, name)
	}
	clean := path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, name)
	}
	return clean, nil
}

// ExtractZip unpacks src into dst and returns the relative paths of the
// extracted files. The whole archive is checked before anything is written.
func ExtractZip(fs afero.Fs, src, dst string) ([]string, error) {
	r, closer, err := open(fs, src)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	for _, f := range r.File {
		if _, err := entryPath(f.Name); err != nil {
			return nil, err
		}
	}

	if err := fs.MkdirAll(dst, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dst, err)
	}

	var files []string
	for _, f := range r.File {
		rel, _ := entryPath(f.Name)
		target := filepath.Join(dst, filepath.FromSlash(rel))

		if f.FileInfo().IsDir() {
			if err := fs.MkdirAll(target, 0o755); err != nil {
				return files, fmt.Errorf("creating %s: %w", target, err)
			}
			continue
		}

		if err := extractFile(fs, f, target); err != nil {
			return files, err
		}
		files = append(files, rel)
	}
	return files, nil
}

func extractFile(fs afero.Fs, f *zip.File, target string) error {
	if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(target), err)
	}

	in, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer in.Close()

	out, err := fs.Create(target)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	return out.Close()
}
