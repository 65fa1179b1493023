package logstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gainsborouo/ta-source/internal/common"
)

// FSStore serves logs from root/<course>/<name>.
type FSStore struct {
	root string
}

// NewFSStore returns a store rooted at root, resolved to an absolute path.
func NewFSStore(root string) (*FSStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("logs root: %w", err)
	}
	return &FSStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *FSStore) Root() string {
	return s.root
}

// within reports whether target lies strictly below base.
func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolve joins elems under base and fails with common.ErrInvalidPath if
// the cleaned result escapes it.
func resolve(base string, elems ...string) (string, error) {
	p := filepath.Join(append([]string{base}, elems...)...)
	if !within(base, p) {
		return "", common.ErrInvalidPath
	}
	return p, nil
}

func (s *FSStore) List(_ context.Context, course string) ([]string, error) {
	dir, err := resolve(s.root, course)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("read course dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (s *FSStore) Read(_ context.Context, course, name string) ([]byte, error) {
	dir, err := resolve(s.root, course)
	if err != nil {
		return nil, err
	}
	path, err := resolve(dir, name)
	if err != nil {
		return nil, err
	}

	// Symlinks must not lead outside the course directory either.
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("resolve log file: %w", err)
	}
	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve course dir: %w", err)
	}
	if !within(realDir, target) {
		return nil, common.ErrInvalidPath
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, common.ErrorNotFound
	}

	b, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	return b, nil
}
