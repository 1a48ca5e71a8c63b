// Package vault provides rooted access to the managed note tree. Every path
// is resolved against the vault root and anything escaping it is rejected.
package vault

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kerbin-io/notarius/internal/apperr"
)

// Vault is the filesystem handle for the managed tree.
type Vault struct {
	root  string // absolute path to the vault directory
	zones zoneTable
}

// New creates a Vault rooted at root with the given zone layout. The root
// directory must already exist; zone directories are created on demand by
// EnsureLayout.
func New(root string, layout Layout) (*Vault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("vault: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("vault: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault: root is not a directory: %s", abs)
	}
	v := &Vault{root: abs}
	v.zones = newZoneTable(abs, layout)
	return v, nil
}

// Root returns the absolute vault root.
func (v *Vault) Root() string { return v.root }

// EnsureLayout creates every zone directory that does not exist yet.
func (v *Vault) EnsureLayout() error {
	for _, dir := range v.zones.dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("vault: ensure layout: %w", err)
		}
	}
	return nil
}

// Resolve canonicalizes path (absolute or vault-relative) and rejects any
// result outside the root. This is the security boundary: no caller touches
// the filesystem except through a resolved path.
func (v *Vault) Resolve(path string) (string, error) {
	var joined string
	if filepath.IsAbs(path) {
		joined = filepath.Clean(path)
	} else {
		joined = filepath.Join(v.root, filepath.Clean(path))
	}
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("vault: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, v.root+string(os.PathSeparator)) && abs != v.root {
		return "", fmt.Errorf("vault: %q: %w", path, apperr.ErrPathEscape)
	}
	return abs, nil
}

// Rel returns path relative to the vault root.
func (v *Vault) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(v.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("vault: %q: %w", abs, apperr.ErrPathEscape)
	}
	return rel, nil
}

// Read returns the raw bytes of a vault file.
func (v *Vault) Read(path string) ([]byte, error) {
	abs, err := v.Resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("vault: read %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("vault: read %s: %w", path, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file, fsync, rename.
func (v *Vault) Write(path string, content []byte) error {
	abs, err := v.Resolve(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vault: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".notarius-tmp-*")
	if err != nil {
		return fmt.Errorf("vault: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("vault: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("vault: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vault: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("vault: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes a file from the vault.
func (v *Vault) Delete(path string) error {
	abs, err := v.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("vault: delete %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path resolves to an existing regular file.
func (v *Vault) Exists(path string) bool {
	abs, err := v.Resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && info.Mode().IsRegular()
}

// FileMeta describes one note file found by List.
type FileMeta struct {
	Path    string // absolute
	Size    int64
	ModTime time.Time
}

// List walks dir (vault-relative, "" for the whole tree) and returns every
// note file, skipping hidden subtrees.
func (v *Vault) List(dir string) ([]FileMeta, error) {
	base := v.root
	if dir != "" {
		abs, err := v.Resolve(dir)
		if err != nil {
			return nil, err
		}
		base = abs
	}
	var out []FileMeta
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if p != base && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		if strings.HasPrefix(name, ".") || (ext != ".md" && ext != ".txt") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out = append(out, FileMeta{Path: p, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vault: list: %w", err)
	}
	return out, nil
}

// MoveToDir moves src into dstDir (both resolved against the root) under
// base, resolving name collisions with a numeric suffix. It falls back to
// copy+remove for cross-device moves and returns the final absolute path.
func (v *Vault) MoveToDir(src, dstDir, base string) (string, error) {
	absSrc, err := v.Resolve(src)
	if err != nil {
		return "", err
	}
	absDir, err := v.Resolve(dstDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("vault: mkdir %s: %w", dstDir, err)
	}
	if base == "" {
		base = filepath.Base(absSrc)
	}

	dst := filepath.Join(absDir, base)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 2; ; i++ {
		if _, err := os.Stat(dst); os.IsNotExist(err) {
			break
		}
		if dst == absSrc {
			return absSrc, nil // already in place
		}
		dst = filepath.Join(absDir, fmt.Sprintf("%s %d%s", stem, i, ext))
	}

	if err := os.Rename(absSrc, dst); err == nil {
		return dst, nil
	}

	// Cross-device fallback: copy then remove.
	in, err := os.Open(absSrc)
	if err != nil {
		return "", fmt.Errorf("vault: move open: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("vault: move create: %w", err)
	}
	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("vault: move copy: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("vault: move close: %w", closeErr)
	}
	if err := os.Remove(absSrc); err != nil {
		return "", fmt.Errorf("vault: move remove src: %w", err)
	}
	return dst, nil
}

// DatedName prefixes base with day's date, the naming convention for stored
// notes. An existing date prefix is not doubled.
func DatedName(day time.Time, base string) string {
	prefix := day.Format("2006-01-02")
	if strings.HasPrefix(base, prefix) {
		return base
	}
	if len(base) >= 10 {
		if _, err := time.Parse("2006-01-02", base[:10]); err == nil {
			return base
		}
	}
	return prefix + " " + base
}
