package materializer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/forgelab/dice/apath"
	"github.com/forgelab/dice/digest"
)

// runMethod performs the actual I/O for method at path and reports the
// outcome back to the processor via completionCmd — the only place a
// node's stage is allowed to change, keeping this goroutine's work purely
// computational from the tree's point of view.
func (p *processor) runMethod(ctx context.Context, path apath.Path, method Method) {
	start := time.Now()
	d, err := p.execMethod(ctx, path, method)
	status := "success"
	if err != nil {
		status = "error"
	}
	p.stats.RecordMaterializeLatency(methodKind(method), status, float64(time.Since(start).Milliseconds()))
	p.send(completionCmd{path: path, digest: d, err: err})
}

func (p *processor) execMethod(ctx context.Context, path apath.Path, method Method) (string, error) {
	switch m := method.(type) {
	case CopyMethod:
		return "", p.execCopy(ctx, path, m)
	case SymlinkMethod:
		return "", p.execSymlink(ctx, path, m)
	case CasFetchMethod:
		return p.execCasFetch(ctx, path, m)
	case HttpFetchMethod:
		return p.execHttpFetch(ctx, path, m)
	default:
		return "", &InternalError{Op: "ensure", Message: fmt.Sprintf("unknown method type %T", method)}
	}
}

// ensureSync recursively materializes a dependency path from inside a
// materialization goroutine. It is safe to call from here (unlike from the
// processor's own run loop) because it only enqueues a command and blocks
// this goroutine, not the single mailbox reader.
func (p *processor) ensureSync(ctx context.Context, path apath.Path) error {
	reply := make(chan error, 1)
	p.send(ensureCmd{ctx: ctx, path: path, reply: reply})
	return <-reply
}

func (p *processor) execCopy(ctx context.Context, dest apath.Path, m CopyMethod) error {
	if m.AsDirSymlink && len(m.Sources) == 1 {
		if err := p.ensureSync(ctx, m.Sources[0]); err != nil {
			return err
		}
		if p.fs.IsDir(m.Sources[0].String()) {
			return p.fs.Symlink(p.fs.Abs(m.Sources[0].String()), dest.String())
		}
		// fall through to per-file copy: source turned out to be a loose file.
	}
	for _, src := range m.Sources {
		if err := p.ensureSync(ctx, src); err != nil {
			return err
		}
		if err := p.limits.reads.Acquire(ctx, 1); err != nil {
			return ErrCancelled
		}
		err := p.fs.CopyFile(src.String(), dest.String())
		p.limits.reads.Release(1)
		if err != nil {
			return &InfraError{Op: "copy", Path: dest.String(), Cause: err}
		}
	}
	return nil
}

func (p *processor) execSymlink(ctx context.Context, dest apath.Path, m SymlinkMethod) error {
	if m.External != "" {
		return p.fs.Symlink(m.External, dest.String())
	}
	if err := p.ensureSync(ctx, m.Source); err != nil {
		return err
	}
	return p.fs.Symlink(p.fs.Abs(m.Source.String()), dest.String())
}

func (p *processor) execCasFetch(ctx context.Context, dest apath.Path, m CasFetchMethod) (string, error) {
	if len(m.Children) > 0 {
		return p.execCasFetchDir(dest, m)
	}

	if err := p.limits.reads.Acquire(ctx, 1); err != nil {
		return "", ErrCancelled
	}
	defer p.limits.reads.Release(1)

	r, err := p.casCli.Download(ctx, m.Digest)
	if err != nil {
		return "", &InfraError{Op: "cas_fetch", Path: dest.String(), Cause: err}
	}
	defer r.Close()

	mode := os.FileMode(0o644)
	if m.Executable {
		mode = 0o755
	}
	mw := digest.NewMultiWriter()
	n, err := p.fs.AtomicWrite(dest.String(), io.TeeReader(r, mw), mode)
	if err != nil {
		return "", &InfraError{Op: "cas_fetch", Path: dest.String(), Cause: err}
	}
	if n != m.Digest.Size {
		return "", &UserError{Op: "cas_fetch", Path: dest.String(), Message: fmt.Sprintf("size mismatch: got %d want %d", n, m.Digest.Size)}
	}
	p.stats.AddMaterializeBytes("cas_fetch", n)
	return m.Digest.String(), nil
}

// execCasFetchDir realizes a directory-manifest CasFetch: dest itself
// becomes a directory, and each entry is sub-declared under it via an
// extension command rather than materialized synchronously here — the
// concrete case the unbounded mailbox exists for (spec §4.2.3).
func (p *processor) execCasFetchDir(dest apath.Path, m CasFetchMethod) (string, error) {
	if err := os.MkdirAll(p.fs.Abs(dest.String()), 0o755); err != nil {
		return "", &InfraError{Op: "cas_fetch", Path: dest.String(), Cause: err}
	}
	for name, child := range m.Children {
		childPath, err := apath.New(dest.String() + "/" + name)
		if err != nil {
			continue
		}
		p.send(extensionCmd{path: childPath, method: child})
	}
	return m.Digest.String(), nil
}

func (p *processor) execHttpFetch(ctx context.Context, dest apath.Path, m HttpFetchMethod) (string, error) {
	var lastErr error
	for attempt, delay := range httpRetrySchedule {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ErrCancelled
			}
		}
		if attempt > 0 {
			p.stats.IncMaterializeRetry("transient_error")
		}

		d, err := p.attemptHttpFetch(ctx, dest, m)
		if err == nil {
			return d, nil
		}
		var uerr *UserError
		if errors.As(err, &uerr) {
			return "", err // permanent: checksum mismatch, do not retry
		}
		lastErr = err
	}
	return "", &InfraError{Op: "http_fetch", Path: dest.String(), Retries: len(httpRetrySchedule) - 1, Cause: lastErr}
}

func (p *processor) attemptHttpFetch(ctx context.Context, dest apath.Path, m HttpFetchMethod) (string, error) {
	if err := p.limits.httpRate.Wait(ctx); err != nil {
		return "", ErrCancelled
	}
	if err := p.limits.reads.Acquire(ctx, 1); err != nil {
		return "", ErrCancelled
	}
	defer p.limits.reads.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return "", &UserError{Op: "http_fetch", Path: dest.String(), Message: "malformed request", Cause: err}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if !httpRetryable(0, err) {
			return "", &UserError{Op: "http_fetch", Path: dest.String(), Message: "request failed", Cause: err}
		}
		return "", &InfraError{Op: "http_fetch", Path: dest.String(), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if httpRetryable(resp.StatusCode, nil) {
			return "", &InfraError{Op: "http_fetch", Path: dest.String(), Cause: fmt.Errorf("status %d", resp.StatusCode)}
		}
		return "", &UserError{Op: "http_fetch", Path: dest.String(), Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	mode := os.FileMode(0o644)
	if m.Executable {
		mode = 0o755
	}
	mw := digest.NewMultiWriter()
	_, err = p.fs.AtomicWrite(dest.String(), io.TeeReader(resp.Body, mw), mode)
	if err != nil {
		return "", &InfraError{Op: "http_fetch", Path: dest.String(), Cause: err}
	}

	got := mw.SHA1()
	if !got.Equal(m.SHA1) {
		return "", &UserError{Op: "http_fetch", Path: dest.String(), Message: fmt.Sprintf("sha1 mismatch: got %s want %s", got.Hex, m.SHA1.Hex)}
	}
	if !m.SHA256.IsZero() {
		got256 := mw.SHA256()
		if !got256.Equal(m.SHA256) {
			return "", &UserError{Op: "http_fetch", Path: dest.String(), Message: fmt.Sprintf("sha256 mismatch: got %s want %s", got256.Hex, m.SHA256.Hex)}
		}
	}
	p.stats.AddMaterializeBytes("http_fetch", got.Size)
	return got.String(), nil
}
