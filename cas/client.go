// Package cas defines the content-addressed store client the materializer
// fetches blobs from and extends TTLs against.
package cas

import (
	"context"
	"io"

	"github.com/forgelab/dice/digest"
)

// Blob is a unit of content identified by its digest.
type Blob struct {
	Digest digest.Digest
	Data   []byte
}

// Client is the CAS client interface (spec §6): upload, download, TTL
// extension, and presence checks, all digest-keyed.
type Client interface {
	// Upload stores blobs, keyed by their own digests.
	Upload(ctx context.Context, blobs []Blob) error

	// Download streams the content for digest d. The caller must Close the
	// returned reader.
	Download(ctx context.Context, d digest.Digest) (io.ReadCloser, error)

	// ExtendTTL requests the CAS keep every listed digest alive past its
	// current expiry. Digests the CAS no longer holds are returned in
	// missing so the caller can transition those paths back to Declared.
	ExtendTTL(ctx context.Context, digests []digest.Digest) (missing []digest.Digest, err error)

	// Missing reports which of the given digests the CAS does not have.
	Missing(ctx context.Context, digests []digest.Digest) ([]digest.Digest, error)
}
