package cas

import (
	"context"
	"io"
	"testing"

	"github.com/forgelab/dice/digest"
)

func TestMemoryClientUploadThenDownloadRoundTrips(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()
	d, err := digest.FromBytes(digest.SHA256, []byte("hello"))
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}

	if err := c.Upload(ctx, []Blob{{Digest: d, Data: []byte("hello")}}); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	r, err := c.Download(ctx, d)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if string(got) != "hello" {
		t.Fatalf("Download content = %q, want %q", got, "hello")
	}
}

func TestMemoryClientDownloadMissingReturnsErrBlobNotFound(t *testing.T) {
	c := NewMemoryClient()
	d, _ := digest.FromBytes(digest.SHA256, []byte("missing"))
	if _, err := c.Download(context.Background(), d); err != ErrBlobNotFound {
		t.Fatalf("Download err = %v, want ErrBlobNotFound", err)
	}
}

func TestMemoryClientExtendTTLReportsMarkedExpiredAsMissing(t *testing.T) {
	c := NewMemoryClient()
	d, _ := digest.FromBytes(digest.SHA256, []byte("x"))
	c.Seed(d, []byte("x"))
	c.MarkExpired(d)

	missing, err := c.ExtendTTL(context.Background(), []digest.Digest{d})
	if err != nil {
		t.Fatalf("ExtendTTL: %v", err)
	}
	if len(missing) != 1 || !missing[0].Equal(d) {
		t.Fatalf("ExtendTTL missing = %v, want [%v]", missing, d)
	}
}

func TestMemoryClientDownloadCountReflectsEachCall(t *testing.T) {
	c := NewMemoryClient()
	d, _ := digest.FromBytes(digest.SHA256, []byte("x"))
	c.Seed(d, []byte("x"))

	for i := 0; i < 3; i++ {
		r, err := c.Download(context.Background(), d)
		if err != nil {
			t.Fatalf("Download: %v", err)
		}
		r.Close()
	}
	if got := c.DownloadCount(); got != 3 {
		t.Fatalf("DownloadCount = %d, want 3", got)
	}
}
