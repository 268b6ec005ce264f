package cas

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/forgelab/dice/digest"
)

// ErrBlobNotFound is returned by Download when the requested digest is not
// present in a MemoryClient.
var ErrBlobNotFound = errors.New("cas: blob not found")

// MemoryClient is an in-memory Client used by tests and the demo command.
// It tracks call history the same way the teacher's MockTool does, so tests
// can assert on download coalescing (spec §8 scenario 6) and TTL sweeps
// without a real network.
type MemoryClient struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	expired   map[string]bool // digests ExtendTTL should report as missing
	Downloads []digest.Digest
	Uploads   []digest.Digest
	Extends   [][]digest.Digest
	Err       error // if set, every call fails with this error
}

// NewMemoryClient returns an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		blobs:   make(map[string][]byte),
		expired: make(map[string]bool),
	}
}

// Seed preloads content for d, as if a prior Upload had stored it.
func (c *MemoryClient) Seed(d digest.Digest, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blobs[d.String()] = data
}

// MarkExpired causes the next ExtendTTL call to report d as missing.
func (c *MemoryClient) MarkExpired(d digest.Digest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expired[d.String()] = true
}

func (c *MemoryClient) Upload(_ context.Context, blobs []Blob) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	for _, b := range blobs {
		c.Uploads = append(c.Uploads, b.Digest)
		c.blobs[b.Digest.String()] = b.Data
	}
	return nil
}

func (c *MemoryClient) Download(_ context.Context, d digest.Digest) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Downloads = append(c.Downloads, d)
	if c.Err != nil {
		return nil, c.Err
	}
	data, ok := c.blobs[d.String()]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (c *MemoryClient) ExtendTTL(_ context.Context, digests []digest.Digest) ([]digest.Digest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Extends = append(c.Extends, digests)
	if c.Err != nil {
		return nil, c.Err
	}
	var missing []digest.Digest
	for _, d := range digests {
		if c.expired[d.String()] {
			missing = append(missing, d)
			delete(c.blobs, d.String())
		}
	}
	return missing, nil
}

func (c *MemoryClient) Missing(_ context.Context, digests []digest.Digest) ([]digest.Digest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	var missing []digest.Digest
	for _, d := range digests {
		if _, ok := c.blobs[d.String()]; !ok {
			missing = append(missing, d)
		}
	}
	return missing, nil
}

// DownloadCount returns how many Download calls have been made, the
// coalescing assertion scenario 6 needs.
func (c *MemoryClient) DownloadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Downloads)
}

// Reset clears call history while keeping seeded content.
func (c *MemoryClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Downloads = nil
	c.Uploads = nil
	c.Extends = nil
}
