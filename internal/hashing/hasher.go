// Package hashing produces the content-addressable identity of media files:
// a streaming sha256 over fixed-size chunks drawn from a shared buffer pool.
package hashing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// chunkSize is the read granularity. Large enough to keep syscall overhead
// low, small enough that cancellation is prompt.
const chunkSize = 80 * 1024

var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, chunkSize)
		return &buf
	},
}

// Digest is the result of hashing one file.
type Digest struct {
	FilePath  string
	Hex       string
	ByteCount int64
	Elapsed   time.Duration
}

// HashFile streams the file through sha256. The chunk buffer is returned to
// the pool on every exit path, and cancellation is checked between chunks so
// an abort never waits on a long file.
func HashFile(ctx context.Context, path string) (Digest, error) {
	start := time.Now()

	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("open for hashing: %w", err)
	}
	defer file.Close()

	bufPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufPtr)
	buf := *bufPtr

	hasher := sha256.New()
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return Digest{}, err
		}
		n, readErr := file.Read(buf)
		if n > 0 {
			total += int64(n)
			hasher.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return Digest{}, fmt.Errorf("read for hashing: %w", readErr)
		}
	}

	return Digest{
		FilePath:  path,
		Hex:       hex.EncodeToString(hasher.Sum(nil)),
		ByteCount: total,
		Elapsed:   time.Since(start),
	}, nil
}
