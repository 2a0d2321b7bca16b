package core

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
)

// TrimResult describes a completed header trim.
type TrimResult struct {
	// Path is the artifact that was rewritten.
	Path string

	// Lines is the number of header lines requested.
	Lines int

	// Found is the number of those lines the artifact actually had.
	Found int

	// Offset is the combined length of the header lines, terminators included.
	Offset int64

	// Before and After are the artifact sizes around the rewrite.
	Before int64
	After  int64
}

// Short reports whether the artifact had fewer lines than requested.
func (r *TrimResult) Short() bool {
	return r != nil && r.Found < r.Lines
}

// Removed returns the number of bytes dropped from the artifact.
func (r *TrimResult) Removed() int64 {
	if r == nil {
		return 0
	}
	return r.Before - r.After
}

// HeaderOffset returns the combined byte length of the first n lines read
// from r, line terminators included. "\n", "\r\n" and a lone "\r" each end a
// line. A final line without a terminator counts its bytes; missing lines
// count zero.
func HeaderOffset(r io.Reader, n int) (int64, error) {
	offset, _, err := headerSpan(r, n)
	return offset, err
}

// headerSpan also reports how many of the n lines were present.
func headerSpan(r io.Reader, n int) (offset int64, found int, err error) {
	if n <= 0 {
		return 0, 0, nil
	}
	br := bufio.NewReader(r)
	lineLen := 0
	for found < n {
		b, err := br.ReadByte()
		if err == io.EOF {
			if lineLen > 0 {
				found++
			}
			break
		}
		if err != nil {
			return offset, found, errors.Wrap(err, "reading header line")
		}
		offset++
		lineLen++

		switch b {
		case '\n':
		case '\r':
			if next, perr := br.Peek(1); perr == nil && next[0] == '\n' {
				_, _ = br.ReadByte()
				offset++
			}
		default:
			continue
		}
		found++
		lineLen = 0
	}
	return offset, found, nil
}

// TrimHeader returns content without its first n lines.
//
// Content with fewer than n lines trims to empty. The remainder is returned
// verbatim, so trimming twice removes 2n lines.
func TrimHeader(content []byte, n int) []byte {
	offset, _ := HeaderOffset(bytes.NewReader(content), n)
	if offset >= int64(len(content)) {
		return []byte{}
	}
	return content[offset:]
}

// TrimHeaderFile removes the first n lines of the file at path and rewrites
// it in place, keeping its mode. normalizer, when non-nil, is applied to the
// remainder before writing.
//
// A missing file returns ErrNoArtifact. An artifact with fewer than n lines
// becomes empty without error.
func TrimHeaderFile(path string, n int, normalizer OutputNormalizer) (*TrimResult, error) {
	content, offset, found, mode, err := readWithHeaderOffset(path, n)
	if err != nil {
		return nil, err
	}

	var remainder []byte
	if offset < int64(len(content)) {
		remainder = content[offset:]
	}
	if normalizer != nil {
		remainder = normalizer.Normalize(remainder)
	}

	if err := os.WriteFile(path, remainder, mode); err != nil {
		return nil, errors.Wrapf(err, "writing %s", path)
	}

	return &TrimResult{
		Path:   path,
		Lines:  n,
		Found:  found,
		Offset: offset,
		Before: int64(len(content)),
		After:  int64(len(remainder)),
	}, nil
}

// readWithHeaderOffset reads the whole file, then rewinds and measures the
// header lines from the start of the same stream.
func readWithHeaderOffset(path string, n int) ([]byte, int64, int, os.FileMode, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, 0, 0, errors.Wrapf(ErrNoArtifact, "open %s", path)
		}
		return nil, 0, 0, 0, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, 0, 0, errors.Wrapf(err, "stat %s", path)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, 0, 0, 0, errors.Wrapf(err, "reading %s", path)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, 0, 0, errors.Wrapf(err, "rewinding %s", path)
	}
	offset, found, err := headerSpan(f, n)
	if err != nil {
		return nil, 0, 0, 0, errors.Wrapf(err, "measuring header of %s", path)
	}

	return content, offset, found, info.Mode().Perm(), nil
}
