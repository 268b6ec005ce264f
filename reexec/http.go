package reexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/forgelab/dice/digest"
)

// HTTPExecutor dispatches a Request to a remote execution service over
// HTTP, POSTing the request as JSON and decoding a Report from the
// response body. Adapted from the teacher's HTTPTool GET/POST client
// shape for an executor that always POSTs and always expects a
// structured JSON reply rather than an arbitrary body.
type HTTPExecutor struct {
	client   *http.Client
	endpoint string
}

// NewHTTPExecutor returns an HTTPExecutor posting requests to endpoint.
func NewHTTPExecutor(endpoint string) *HTTPExecutor {
	return &HTTPExecutor{
		client:   &http.Client{},
		endpoint: endpoint,
	}
}

type wireRequest struct {
	Command  []string          `json:"command"`
	Inputs   []string          `json:"inputs"`
	Outputs  []string          `json:"outputs"`
	Env      map[string]string `json:"env"`
	Platform string            `json:"platform"`
}

type wireReport struct {
	ExitCode     int               `json:"exit_code"`
	StdoutDigest string            `json:"stdout_digest"`
	StderrDigest string            `json:"stderr_digest"`
	Outputs      map[string]string `json:"outputs"`
	TimingMillis int64             `json:"timing_millis"`
}

// Execute runs req on the remote service. A non-2xx response is surfaced
// as an error wrapping the response body, matching the remote execution
// service semantics spec §6 describes for reexec.ActionExecutor.
func (h *HTTPExecutor) Execute(ctx context.Context, req Request) (Report, error) {
	wire := wireRequest{
		Command:  req.Command,
		Inputs:   req.Inputs,
		Outputs:  req.Outputs,
		Env:      req.Env,
		Platform: req.Platform,
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return Report{}, fmt.Errorf("reexec: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return Report{}, fmt.Errorf("reexec: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := h.client.Do(httpReq)
	if err != nil {
		return Report{}, fmt.Errorf("reexec: remote execute: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Report{}, fmt.Errorf("reexec: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Report{}, fmt.Errorf("reexec: remote execute failed with status %d: %s", resp.StatusCode, respBody)
	}

	var wireResp wireReport
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return Report{}, fmt.Errorf("reexec: decode response: %w", err)
	}

	outputs := make(map[string]digest.Digest, len(wireResp.Outputs))
	for path, s := range wireResp.Outputs {
		d, err := digest.Parse(s)
		if err != nil {
			return Report{}, fmt.Errorf("reexec: decode output digest for %s: %w", path, err)
		}
		outputs[path] = d
	}
	stdoutDigest, err := digest.Parse(wireResp.StdoutDigest)
	if err != nil {
		return Report{}, fmt.Errorf("reexec: decode stdout digest: %w", err)
	}
	stderrDigest, err := digest.Parse(wireResp.StderrDigest)
	if err != nil {
		return Report{}, fmt.Errorf("reexec: decode stderr digest: %w", err)
	}

	return Report{
		ExitCode:      wireResp.ExitCode,
		StdoutDigest:  stdoutDigest,
		StderrDigest:  stderrDigest,
		Outputs:       outputs,
		Timing:        time.Since(start),
		ExecutionKind: Remote,
	}, nil
}
