// Package access decides which course log files a caller may list or read.
//
// Ownership is substring based: a non-admin caller owns every file whose
// name contains their username, matching how log files embed the student
// ID among other tokens (hw1_0812345_run2.txt). Admins see everything.
package access

import (
	"context"
	"sort"
	"strings"

	"github.com/gainsborouo/ta-source/internal/common"
	"github.com/gainsborouo/ta-source/internal/server/logstore"
)

// Caller is the authenticated identity a decision is made for. IsAdmin
// should be the live role, not the one frozen into the session token.
type Caller struct {
	Username string
	IsAdmin  bool
}

// Artifact is a log file returned to the caller.
type Artifact struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type Evaluator struct {
	store logstore.Store
}

func NewEvaluator(store logstore.Store) *Evaluator {
	return &Evaluator{store: store}
}

// ValidateName rejects course or file names that could address anything
// other than a direct child of the logs root or of a course directory.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".":
		return common.ErrInvalidPath
	case strings.HasPrefix(name, "/"), strings.HasPrefix(name, `\`):
		return common.ErrInvalidPath
	case strings.ContainsRune(name, 0):
		return common.ErrInvalidPath
	}

	for _, seg := range strings.FieldsFunc(name, isSeparator) {
		if seg == ".." {
			return common.ErrInvalidPath
		}
	}
	if strings.ContainsFunc(name, isSeparator) {
		return common.ErrInvalidPath
	}
	return nil
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

func owns(c Caller, filename string) bool {
	return c.Username != "" && strings.Contains(filename, c.Username)
}

// List returns the files of course visible to c, sorted. Admins may narrow
// the result with studentFilter (substring match); for everyone else the
// filter is ignored and only their own files are returned.
func (e *Evaluator) List(ctx context.Context, c Caller, course, studentFilter string) ([]string, error) {
	if err := ValidateName(course); err != nil {
		return nil, err
	}
	if !c.IsAdmin && c.Username == "" {
		return nil, common.ErrForbidden
	}

	names, err := e.store.List(ctx, course)
	if err != nil {
		return nil, err
	}

	filter := c.Username
	if c.IsAdmin {
		filter = studentFilter
	}

	visible := make([]string, 0, len(names))
	for _, n := range names {
		if filter == "" || strings.Contains(n, filter) {
			visible = append(visible, n)
		}
	}
	sort.Strings(visible)
	return visible, nil
}

// Read returns one file. Path checks run before the ownership check so a
// traversal attempt is reported as common.ErrInvalidPath for every role.
func (e *Evaluator) Read(ctx context.Context, c Caller, course, filename string) (*Artifact, error) {
	if err := ValidateName(course); err != nil {
		return nil, err
	}
	if err := ValidateName(filename); err != nil {
		return nil, err
	}
	if !c.IsAdmin && !owns(c, filename) {
		return nil, common.ErrForbidden
	}

	b, err := e.store.Read(ctx, course, filename)
	if err != nil {
		return nil, err
	}
	return &Artifact{Filename: filename, Content: string(b)}, nil
}
