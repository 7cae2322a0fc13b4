package utilities

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates the parent directory of destFilePath if it does not exist.
func EnsureDir(destFilePath string) error {
	dir := filepath.Dir(destFilePath)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(dir, 0o755)
	} else if err != nil {
		return err
	}
	return nil
}

// PrependFile writes content in front of whatever destFilePath already holds.
// The new content is staged in a temporary file in the same directory and
// renamed over the destination, so readers see either the old or the new file.
func PrependFile(destFilePath string, content []byte) error {
	if err := EnsureDir(destFilePath); err != nil {
		return err
	}

	existing, err := os.ReadFile(destFilePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(destFilePath), "."+filepath.Base(destFilePath)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err = tmp.Write(content); err == nil {
		_, err = tmp.Write(existing)
	}
	if err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err = tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err = os.Rename(tmpName, destFilePath); err != nil {
		cleanup()
		return err
	}
	return nil
}

// WithinRoot reports whether path resolves to a location inside root.
func WithinRoot(root, path string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func ListFilesWithExt(root, ext string, recursive bool) ([]string, error) {
	if root == "" {
		return nil, errors.New("root directory is empty")
	}
	if ext == "" {
		return nil, errors.New("extension is empty")
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	ext = strings.ToLower(ext)

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("root is not a directory")
	}

	var out []string

	if !recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			if strings.EqualFold(filepath.Ext(name), ext) {
				abs, _ := filepath.Abs(filepath.Join(root, name))
				out = append(out, abs)
			}
		}
		return out, nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), ext) {
			abs, _ := filepath.Abs(path)
			out = append(out, abs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
