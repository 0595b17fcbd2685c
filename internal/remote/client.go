// Package remote issues authenticated HTTP calls against a marketplace
// account. It returns status + body and never retries internally; retry
// classification and backoff belong to the callers.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/marketgate/mp-gateway/internal/model"
)

// MaxPageSize is the documented maximum page size of the marketplace list
// endpoints. Requests above it are clamped by the caller.
const MaxPageSize = 100

// ErrBreakerOpen is surfaced when the per-host circuit breaker refuses the
// call. Callers classify it as a transient failure.
var ErrBreakerOpen = errors.New("remote circuit breaker open")

// Response is the raw remote outcome handed to the retry policy.
type Response struct {
	Status int
	Body   []byte
}

func (r Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

type Client interface {
	// List fetches one page of a resource class.
	List(ctx context.Context, conn *model.Connection, resource model.ResourceType, page, size int) (Response, error)
	// Execute performs one write action against the remote.
	Execute(ctx context.Context, conn *model.Connection, cmd model.CommandType, targetID string, payload []byte) (Response, error)
}

type BreakerOpts struct {
	FailThreshold int
	OpenFor       time.Duration
}

// HTTPClient talks to the marketplace REST API. One MicroBreaker per
// connection host guards against hammering a struggling remote.
type HTTPClient struct {
	http      *http.Client
	apiKeyHdr string

	brOpts   BreakerOpts
	mu       sync.Mutex
	breakers map[string]*MicroBreaker
}

func NewHTTPClient(timeout time.Duration, apiKeyHeader string, br BreakerOpts) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	return &HTTPClient{
		http:      &http.Client{Timeout: timeout},
		apiKeyHdr: apiKeyHeader,
		brOpts:    br,
		breakers:  make(map[string]*MicroBreaker),
	}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) breakerFor(host string) *MicroBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[host]
	if !ok {
		b = NewMicroBreaker(c.brOpts.FailThreshold, c.brOpts.OpenFor)
		c.breakers[host] = b
	}
	return b
}

func (c *HTTPClient) List(ctx context.Context, conn *model.Connection, resource model.ResourceType, page, size int) (Response, error) {
	if size <= 0 || size > MaxPageSize {
		size = MaxPageSize
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	path := "/api/v1/" + resource.String() + "?" + q.Encode()

	return c.do(ctx, conn, http.MethodGet, path, nil)
}

func (c *HTTPClient) Execute(ctx context.Context, conn *model.Connection, cmd model.CommandType, targetID string, payload []byte) (Response, error) {
	method, path, err := commandRoute(cmd, targetID)
	if err != nil {
		return Response{}, err
	}
	return c.do(ctx, conn, method, path, payload)
}

func commandRoute(cmd model.CommandType, targetID string) (method, path string, err error) {
	id := url.PathEscape(targetID)
	switch cmd {
	case model.CommandAnswerQuestion:
		return http.MethodPost, "/api/v1/questions/" + id + "/answer", nil
	case model.CommandApproveClaim:
		return http.MethodPost, "/api/v1/claims/" + id + "/approve", nil
	case model.CommandRejectClaim:
		return http.MethodPost, "/api/v1/claims/" + id + "/reject", nil
	case model.CommandUpdateTracking:
		return http.MethodPost, "/api/v1/orders/" + id + "/tracking", nil
	case model.CommandPushInventory:
		return http.MethodPut, "/api/v1/products/" + id + "/inventory", nil
	case model.CommandPushPrice:
		return http.MethodPut, "/api/v1/products/" + id + "/price", nil
	default:
		return "", "", fmt.Errorf("unknown command type %q", cmd)
	}
}

func (c *HTTPClient) do(ctx context.Context, conn *model.Connection, method, path string, body []byte) (Response, error) {
	endpoint := conn.BaseURL + path
	u, err := url.Parse(endpoint)
	if err != nil {
		return Response{}, fmt.Errorf("bad endpoint %q: %w", endpoint, err)
	}

	br := c.breakerFor(u.Host)
	if !br.TryAcquire() {
		return Response{}, ErrBreakerOpen
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		br.OnFailure()
		return Response{}, err
	}
	req.Header.Set(c.apiKeyHdr, conn.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		br.OnFailure()
		return Response{}, err
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		br.OnFailure()
		return Response{}, err
	}

	if res.StatusCode >= 500 {
		br.OnFailure()
	} else {
		br.OnSuccess()
	}

	return Response{Status: res.StatusCode, Body: respBody}, nil
}
