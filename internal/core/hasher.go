package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// Digest is a hex-encoded sha256.
type Digest string

// String returns the string representation of the Digest.
func (d Digest) String() string {
	return string(d)
}

// Short returns the first 12 characters, for display.
func (d Digest) Short() string {
	if len(d) > 12 {
		return string(d[:12])
	}
	return string(d)
}

// PipelineHash is the identity of a pipeline definition. Any change to the
// compiler invocation, the trimming parameters or the targets changes it.
type PipelineHash = Digest

// HashInput contains every component of a pipeline's identity.
type HashInput struct {
	// WorkingDir is the directory relative paths resolve under.
	WorkingDir string

	// Compiler is the compiler argv prefix (command and extra args).
	Compiler []string

	// Env is the compiler's extra environment.
	Env map[string]string

	HeaderLines       int
	Strict            bool
	NormalizeNewlines bool

	// Targets are hashed in the given order; order is part of the identity
	// because targets run serially.
	Targets []Target
}

// ComputePipelineHash computes a deterministic PipelineHash.
//
// All components are length-prefixed to prevent ambiguity and map keys are
// sorted.
func ComputePipelineHash(input HashInput) PipelineHash {
	h := sha256.New()

	writeField(h, []byte(input.WorkingDir))

	writeField(h, []byte(strconv.Itoa(len(input.Compiler))))
	for _, a := range input.Compiler {
		writeField(h, []byte(a))
	}

	envKeys := make([]string, 0, len(input.Env))
	for k := range input.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	writeField(h, []byte(strconv.Itoa(len(envKeys))))
	for _, k := range envKeys {
		writeField(h, []byte(k))
		writeField(h, []byte(input.Env[k]))
	}

	writeField(h, []byte(strconv.Itoa(input.HeaderLines)))
	writeField(h, []byte(strconv.FormatBool(input.Strict)))
	writeField(h, []byte(strconv.FormatBool(input.NormalizeNewlines)))

	writeField(h, []byte(strconv.Itoa(len(input.Targets))))
	for _, t := range input.Targets {
		writeField(h, []byte(t.Name))
		writeField(h, []byte(t.Source))
		writeField(h, []byte(strconv.FormatBool(t.Relocate)))
		writeField(h, []byte(t.Destination))
	}

	return Digest(hex.EncodeToString(h.Sum(nil)))
}

// writeField writes an 8-byte big-endian length prefix followed by data.
func writeField(h hash.Hash, data []byte) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(data)))
	h.Write(prefix[:])
	h.Write(data)
}

// DigestBytes returns the sha256 digest of content.
func DigestBytes(content []byte) Digest {
	sum := sha256.Sum256(content)
	return Digest(hex.EncodeToString(sum[:]))
}

// DigestFile returns the sha256 digest of the file at path.
func DigestFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, "hashing %s", path)
	}
	return Digest(hex.EncodeToString(h.Sum(nil))), nil
}
