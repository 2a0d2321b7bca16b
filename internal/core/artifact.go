package core

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// RelocateResult describes a completed relocation.
type RelocateResult struct {
	// From is the artifact's production path, removed after the copy.
	From string

	// To is the destination path now holding the artifact.
	To string

	// Bytes is the number of bytes copied.
	Bytes int64
}

// Relocate copies the file at from to to, then removes from.
//
// Parent directories of to are created. The copy keeps the source's file
// mode. If from does not exist the destination is left untouched and
// ErrNoArtifact is returned. When to already names the same file as from
// (a symlinked directory or a hard link) nothing is changed.
func Relocate(from, to string) (*RelocateResult, error) {
	if from == "" || to == "" {
		return nil, errors.Wrap(ErrInvalidTarget, "relocate needs both paths")
	}
	if filepath.Clean(from) == filepath.Clean(to) {
		return &RelocateResult{From: from, To: to}, nil
	}
	same, err := sameFile(from, to)
	if err != nil {
		return nil, err
	}
	if same {
		// Copying would truncate the file being read, and removing from
		// would then delete the only copy.
		return &RelocateResult{From: from, To: to}, nil
	}

	n, err := copyFile(from, to)
	if err != nil {
		return nil, err
	}

	if err := os.Remove(from); err != nil {
		return nil, errors.Wrapf(err, "removing %s", from)
	}

	return &RelocateResult{From: from, To: to, Bytes: n}, nil
}

// sameFile reports whether to exists and is the same file as from.
func sameFile(from, to string) (bool, error) {
	src, err := os.Stat(from)
	if err != nil {
		if os.IsNotExist(err) {
			return false, errors.Wrapf(ErrNoArtifact, "stat %s", from)
		}
		return false, errors.Wrapf(err, "stat %s", from)
	}
	dst, err := os.Stat(to)
	if err != nil {
		// a missing or unreadable destination is handled by the copy
		return false, nil
	}
	return os.SameFile(src, dst), nil
}

func copyFile(from, to string) (n int64, err error) {
	src, err := os.Open(from)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.Wrapf(ErrNoArtifact, "open %s", from)
		}
		return 0, errors.Wrapf(err, "open %s", from)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", from)
	}
	if info.IsDir() {
		return 0, errors.Errorf("%s is a directory", from)
	}

	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return 0, errors.Wrapf(err, "creating %s", filepath.Dir(to))
	}

	dst, err := os.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, errors.Wrapf(err, "create %s", to)
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", to)
		}
	}()

	n, err = io.Copy(dst, src)
	if err != nil {
		return n, errors.Wrapf(err, "copying %s to %s", from, to)
	}
	return n, nil
}
