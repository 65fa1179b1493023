// Package logstore reads per-course student log files from a backend:
// a directory tree on local disk or an S3 bucket. It knows nothing about
// who may read what; see package access for that.
package logstore

import "context"

// Store lists and reads the log files of a course. Names are bare file
// names, never paths.
type Store interface {
	// List returns the file names directly under course in no particular
	// order, or common.ErrorNotFound when the course has no logs at all.
	List(ctx context.Context, course string) ([]string, error)
	// Read returns the content of one file, or common.ErrorNotFound.
	Read(ctx context.Context, course, name string) ([]byte, error)
}
