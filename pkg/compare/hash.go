package compare

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"sync"
)

// Algorithm names a content checksum
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	MD5    Algorithm = "md5"
)

// hashBufferSize matches the chunk size used when streaming file content
const hashBufferSize = 64 * 1024

var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferSize)
		return &buf
	},
}

// ParseAlgorithm validates an algorithm name. The empty string selects SHA256.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case "", SHA256:
		return SHA256, nil
	case MD5:
		return MD5, nil
	default:
		return "", fmt.Errorf("unsupported checksum algorithm %q", s)
	}
}

// New returns a fresh hash.Hash for the algorithm
func (a Algorithm) New() hash.Hash {
	if a == MD5 {
		return md5.New()
	}
	return sha256.New()
}

// HashReader streams r through the algorithm and returns the hex digest
func HashReader(ctx context.Context, r io.Reader, algo Algorithm) (string, error) {
	h := algo.New()

	bufPtr := bufferPool.Get().(*[]byte)
	buffer := *bufPtr
	defer bufferPool.Put(bufPtr)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, err := r.Read(buffer)
		if n > 0 {
			h.Write(buffer[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read content: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile computes the hex digest of a local file
func HashFile(ctx context.Context, path string, algo Algorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return HashReader(ctx, f, algo)
}
