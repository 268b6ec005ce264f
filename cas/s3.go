package cas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/forgelab/dice/digest"
)

// S3Client is a CAS client backed by an S3-compatible object store. Blobs
// are keyed by digest under Prefix, giving the CAS client interface a
// production-shaped implementation beyond MemoryClient's test double.
// TTL extension is emulated with object tagging plus a bucket lifecycle
// rule keyed on that tag (S3 itself has no per-object TTL API); a digest
// whose tag-based expiry has already passed and been swept by the
// lifecycle rule is reported missing on the next ExtendTTL or Missing call.
type S3Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Client constructs an S3Client against bucket, storing objects under
// prefix (e.g. "cas/").
func NewS3Client(client *s3.Client, bucket, prefix string) *S3Client {
	return &S3Client{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

func (c *S3Client) key(d digest.Digest) string {
	return fmt.Sprintf("%s%s/%s", c.prefix, d.Algo, d.Hex)
}

func (c *S3Client) Upload(ctx context.Context, blobs []Blob) error {
	for _, b := range blobs {
		_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.key(b.Digest)),
			Body:    bytes.NewReader(b.Data),
			Tagging: aws.String("cas-ttl-eligible=true"),
		})
		if err != nil {
			return fmt.Errorf("cas: s3 upload %s: %w", b.Digest, err)
		}
	}
	return nil
}

func (c *S3Client) Download(ctx context.Context, d digest.Digest) (io.ReadCloser, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(d)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("cas: s3 download %s: %w", d, err)
	}
	return out.Body, nil
}

// ExtendTTL refreshes the TTL tag on each digest's object by re-writing its
// tag set, which resets the lifecycle-rule clock. Objects the bucket no
// longer holds are reported as missing rather than erroring the whole call.
func (c *S3Client) ExtendTTL(ctx context.Context, digests []digest.Digest) ([]digest.Digest, error) {
	var missing []digest.Digest
	for _, d := range digests {
		_, err := c.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.key(d)),
			Tagging: &types.Tagging{
				TagSet: []types.Tag{{Key: aws.String("cas-ttl-eligible"), Value: aws.String("true")}},
			},
		})
		if err != nil {
			var nsk *types.NoSuchKey
			if errors.As(err, &nsk) {
				missing = append(missing, d)
				continue
			}
			return missing, fmt.Errorf("cas: s3 extend_ttl %s: %w", d, err)
		}
	}
	return missing, nil
}

func (c *S3Client) Missing(ctx context.Context, digests []digest.Digest) ([]digest.Digest, error) {
	var missing []digest.Digest
	for _, d := range digests {
		_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.key(d)),
		})
		if err != nil {
			missing = append(missing, d)
		}
	}
	return missing, nil
}
