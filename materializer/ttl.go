package materializer

import (
	"context"
	"time"

	"github.com/forgelab/dice/digest"
	"github.com/forgelab/dice/emit"
)

// runRefresh walks every Materialized leaf backed by a CasFetchMethod,
// keeps only those whose remaining TTL (now until node.expiresAt) falls
// below minTTL, batches the survivors by p.ttlBatchSize, and asks the CAS
// to extend each batch (spec §4.2.5). Any digest a batch reports as no
// longer held demotes its path back to Declared so the next ensure
// re-fetches it instead of serving a dangling reference; every digest a
// batch still holds has its local expiresAt pushed out by
// p.assumedCASTTL, since the CAS client interface never reports back an
// actual remaining TTL for the caller to record.
func (p *processor) runRefresh(ctx context.Context, minTTL time.Duration) error {
	entries := p.tree.walk()
	now := time.Now()

	type candidate struct {
		path   string
		node   *node
		digest digest.Digest
	}
	var candidates []candidate
	for _, e := range entries {
		snap := e.n.snapshot()
		if snap.stage != Materialized {
			continue
		}
		cf, ok := snap.method.(CasFetchMethod)
		if !ok {
			continue
		}
		if snap.expiresAt.Sub(now) >= minTTL {
			continue // still has plenty of TTL left; not due for refresh
		}
		candidates = append(candidates, candidate{path: e.path.String(), node: e.n, digest: cf.Digest})
	}
	if len(candidates) == 0 {
		return nil
	}

	batchSize := p.ttlBatchSize
	if batchSize <= 0 {
		batchSize = len(candidates)
	}
	for start := 0; start < len(candidates); start += batchSize {
		end := start + batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		digests := make([]digest.Digest, len(batch))
		for i, c := range batch {
			digests[i] = c.digest
		}

		missing, err := p.casCli.ExtendTTL(ctx, digests)
		if err != nil {
			return &InfraError{Op: "refresh", Cause: err}
		}

		missingSet := make(map[string]bool, len(missing))
		for _, d := range missing {
			missingSet[d.String()] = true
		}
		refreshedAt := time.Now().Add(p.assumedCASTTL)
		for _, c := range batch {
			if missingSet[c.digest.String()] {
				c.node.mu.Lock()
				if c.node.stage == Materialized {
					c.node.stage = Declared
					c.node.digest = ""
					c.node.expiresAt = time.Time{}
				}
				c.node.mu.Unlock()
				p.emitter.Emit(emit.Event{Subsystem: "materializer", Key: c.path, Version: -1, Kind: "ttl_expired"})
				continue
			}
			c.node.mu.Lock()
			if c.node.stage == Materialized {
				c.node.expiresAt = refreshedAt
			}
			c.node.mu.Unlock()
		}
	}
	return nil
}
