package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"golang.org/x/time/rate"

	"github.com/moyoez/submitsession/tool"
	"github.com/moyoez/submitsession/types"
)

const (
	processPath = "/process"
	uploadPath  = "/upload"
)

// Options configures an HTTPProcessor.
type Options struct {
	Endpoint          string
	APIKey            string
	RequestsPerSecond float64
	Client            *http.Client
	// Inspector enriches link requests with page metadata when set.
	Inspector *LinkInspector
}

// HTTPProcessor is the Processor backed by the processing service's HTTP API.
// File items are streamed to /upload, everything else is posted as JSON to /process.
// Deadlines come from the caller's context.
type HTTPProcessor struct {
	endpoint  string
	apiKey    string
	client    *http.Client
	limiter   *rate.Limiter
	inspector *LinkInspector
}

var _ Processor = (*HTTPProcessor)(nil)

func NewHTTPProcessor(opts Options) *HTTPProcessor {
	client := opts.Client
	if client == nil {
		client = tool.GetHttpClient()
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := max(int(opts.RequestsPerSecond), 1)
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &HTTPProcessor{
		endpoint:  strings.TrimRight(opts.Endpoint, "/"),
		apiKey:    opts.APIKey,
		client:    client,
		limiter:   limiter,
		inspector: opts.Inspector,
	}
}

func (p *HTTPProcessor) Process(ctx context.Context, req types.RemoteRequest, onProgress func(int)) (types.RemoteResponse, error) {
	if p.endpoint == "" {
		return types.RemoteResponse{}, fmt.Errorf("invalid parameters: endpoint must not be empty")
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return types.RemoteResponse{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	switch req.Type {
	case types.RequestFile:
		return p.uploadFile(ctx, req, onProgress)
	case types.RequestLink:
		req = p.enrichLink(ctx, req)
	}
	return p.postJSON(ctx, req)
}

func (p *HTTPProcessor) enrichLink(ctx context.Context, req types.RemoteRequest) types.RemoteRequest {
	if p.inspector == nil {
		return req
	}
	payload, ok := req.Data.(types.LinkPayload)
	if !ok {
		return req
	}
	title, description, err := p.inspector.Inspect(ctx, payload.URL)
	if err != nil {
		tool.DefaultLogger.Debugf("[Transfer] Link inspection skipped for %s: %v", payload.URL, err)
		return req
	}
	payload.Title = title
	payload.Description = description
	req.Data = payload
	return req
}

func (p *HTTPProcessor) postJSON(ctx context.Context, req types.RemoteRequest) (types.RemoteResponse, error) {
	payload, err := sonic.Marshal(req)
	if err != nil {
		return types.RemoteResponse{}, fmt.Errorf("failed to marshal %s request: %v", req.Type, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+processPath, bytes.NewReader(payload))
	if err != nil {
		return types.RemoteResponse{}, fmt.Errorf("failed to create %s request: %v", req.Type, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return p.do(ctx, httpReq, req)
}

func (p *HTTPProcessor) uploadFile(ctx context.Context, req types.RemoteRequest, onProgress func(int)) (types.RemoteResponse, error) {
	if req.File == nil || req.File.Path == "" {
		return types.RemoteResponse{}, fmt.Errorf("invalid parameters: file must not be empty")
	}
	f, err := os.Open(req.File.Path)
	if err != nil {
		return types.RemoteResponse{}, fmt.Errorf("failed to open file: %v", err)
	}
	defer f.Close()

	size := req.File.Size
	if info, statErr := f.Stat(); statErr == nil {
		size = info.Size()
	}

	query := url.Values{}
	query.Set("id", req.ID)
	query.Set("sessionId", req.SessionID)
	query.Set("name", req.File.Name)
	query.Set("mimeType", req.MimeType)
	target := p.endpoint + uploadPath + "?" + query.Encode()

	body := tool.NewProgressReader(ctx, f, size, onProgress)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return types.RemoteResponse{}, fmt.Errorf("failed to create upload request: %v", err)
	}
	httpReq.ContentLength = size
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	return p.do(ctx, httpReq, req)
}

func (p *HTTPProcessor) do(ctx context.Context, httpReq *http.Request, req types.RemoteRequest) (types.RemoteResponse, error) {
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return types.RemoteResponse{}, fmt.Errorf("%s request interrupted: %w", req.Type, ctx.Err())
		}
		return types.RemoteResponse{}, fmt.Errorf("failed to send %s request: %v", req.Type, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close response body: %v", err)
		}
	}()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		tool.DefaultLogger.Warnf("[Transfer] Failed to read response body: %v", readErr)
	}

	// check status code
	switch resp.StatusCode {
	case http.StatusBadRequest:
		return types.RemoteResponse{}, fmt.Errorf("%s request failed: invalid body", req.Type)
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.RemoteResponse{}, fmt.Errorf("%s request failed: unauthorized", req.Type)
	case http.StatusRequestEntityTooLarge:
		return types.RemoteResponse{}, fmt.Errorf("%s request failed: payload too large", req.Type)
	case http.StatusTooManyRequests:
		return types.RemoteResponse{}, fmt.Errorf("%s request failed: too many requests", req.Type)
	case http.StatusInternalServerError:
		return types.RemoteResponse{}, fmt.Errorf("%s request failed: processing service error", req.Type)
	default:
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return types.RemoteResponse{}, fmt.Errorf("%s request failed: %s", req.Type, resp.Status)
		}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return types.RemoteResponse{Success: true}, nil
	}
	var response types.RemoteResponse
	if err := sonic.Unmarshal(body, &response); err != nil {
		return types.RemoteResponse{}, fmt.Errorf("failed to parse %s response: %v", req.Type, err)
	}
	if !response.Success {
		if response.Message != "" {
			return response, fmt.Errorf("%w: %s", ErrRemoteRejected, response.Message)
		}
		return response, ErrRemoteRejected
	}
	tool.DefaultLogger.Debugf("[Transfer] %s request %s accepted", req.Type, req.ID)
	return response, nil
}
