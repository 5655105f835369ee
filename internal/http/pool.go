package http

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/handiism/cloudmusic-downloader/internal/auth"
	"github.com/handiism/cloudmusic-downloader/internal/metrics"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultPoolSize is the number of connection leases per pool.
	DefaultPoolSize = 10

	// DefaultChunkSize is the size of the chunks delivered by Stream.Next.
	DefaultChunkSize = 64 * 1024

	// DefaultTimeout bounds the wait for response headers.
	DefaultTimeout = 30 * time.Second

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Options configures a Pool. Zero values select the defaults.
type Options struct {
	// Size bounds the number of simultaneous leases and the number of
	// connections kept per host.
	Size int

	// ChunkSize is the maximum length of a chunk returned by Stream.Next.
	ChunkSize int

	// Timeout bounds the wait for response headers. Body transfer is only
	// bounded by the request context.
	Timeout time.Duration

	// UserAgent overrides the User-Agent header.
	UserAgent string

	// Credentials, when set, supplies the Cookie header of every request.
	Credentials auth.Store
}

// Pool is the transport shared by catalog calls and audio transfers.
//
// Pool provides:
//   - Connection reuse through one shared http.Transport
//   - Bounded concurrency: every request holds a lease for its duration
//   - Ranged, chunked, cancellable streams for large transfers
//   - Credential attachment from an auth.Store on every request
//
// Example usage:
//
//	pool := http.NewPool(http.Options{Size: 10, Credentials: store})
//	defer pool.Close()
//
//	stream, err := pool.Fetch(ctx, audioURL, 0)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	for {
//	    chunk, err := stream.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    file.Write(chunk)
//	}
type Pool struct {
	client    *http.Client
	transport *http.Transport
	leases    *semaphore.Weighted
	size      int
	inUse     atomic.Int64
	chunkSize int
	userAgent string
	creds     auth.Store
}

// NewPool creates a Pool.
//
// The pool is configured with:
//   - MaxConnsPerHost and MaxIdleConnsPerHost equal to the pool size
//   - a response header timeout (30 seconds by default)
//   - a browser User-Agent header
func NewPool(opts Options) *Pool {
	if opts.Size <= 0 {
		opts.Size = DefaultPoolSize
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          opts.Size * 2,
		MaxIdleConnsPerHost:   opts.Size,
		MaxConnsPerHost:       opts.Size,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
	}

	return &Pool{
		client:    &http.Client{Transport: transport},
		transport: transport,
		leases:    semaphore.NewWeighted(int64(opts.Size)),
		size:      opts.Size,
		chunkSize: opts.ChunkSize,
		userAgent: opts.UserAgent,
		creds:     opts.Credentials,
	}
}

// Size returns the number of leases the pool hands out.
func (p *Pool) Size() int {
	return p.size
}

// InUse returns the number of leases currently held.
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}

// Close drops idle connections. Streams that are still open keep working.
func (p *Pool) Close() {
	p.transport.CloseIdleConnections()
}

// lease blocks until a lease is free or ctx is done. The returned function
// releases it and is safe to call more than once.
func (p *Pool) lease(ctx context.Context) (func(), error) {
	if err := p.leases.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	p.inUse.Add(1)
	metrics.LeasesInUse.Inc()

	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			p.inUse.Add(-1)
			metrics.LeasesInUse.Dec()
			p.leases.Release(1)
		}
	}, nil
}

func (p *Pool) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)

	if p.creds != nil {
		token, err := p.creds.CurrentToken(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Cookie", token)
	}
	return req, nil
}

// Fetch starts a GET transfer of rawURL and returns a Stream of its body.
//
// A positive offset requests the bytes from offset onward with a Range
// header. Servers may ignore the range; Stream.Offset reports where the
// delivered bytes actually start, so callers must restart from scratch when
// it is zero.
//
// The lease is held until the Stream is closed or ctx is done, whichever
// comes first.
//
// Example:
//
//	// Resume a transfer that already wrote 1 MiB
//	stream, err := pool.Fetch(ctx, audioURL, 1<<20)
//	if err == nil && stream.Offset == 0 {
//	    file.Truncate(0)
//	}
func (p *Pool) Fetch(ctx context.Context, rawURL string, offset int64) (*Stream, error) {
	release, err := p.lease(ctx)
	if err != nil {
		return nil, err
	}

	req, err := p.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		release()
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		release()
		return nil, err
	}

	stream := &Stream{
		ctx:     ctx,
		body:    resp.Body,
		buf:     make([]byte, p.chunkSize),
		Total:   resp.ContentLength,
		release: release,
	}

	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		stream.Offset = offset
		stream.Total = partialTotal(resp, offset)
	case resp.StatusCode == http.StatusOK:
	default:
		stream.Close()
		return nil, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	stream.stop = context.AfterFunc(ctx, func() { stream.Close() })
	return stream, nil
}

// Get performs a GET request and returns the response body as bytes.
//
// Use this for small payloads like cover art. For audio, use Fetch to
// stream directly to disk.
func (p *Pool) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := p.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return p.do(ctx, req)
}

// PostForm sends form as an application/x-www-form-urlencoded POST and
// returns the response body. Entries in header are added to the request.
//
// Example:
//
//	body, err := pool.PostForm(ctx, apiURL, url.Values{"params": {payload}}, nil)
func (p *Pool) PostForm(ctx context.Context, rawURL string, form url.Values, header http.Header) ([]byte, error) {
	req, err := p.newRequest(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, values := range header {
		// Extra cookies join the credential cookie in a single header.
		if http.CanonicalHeaderKey(k) == "Cookie" {
			cookies := append([]string{}, values...)
			if existing := req.Header.Get("Cookie"); existing != "" {
				cookies = append(cookies, existing)
			}
			req.Header.Set("Cookie", strings.Join(cookies, "; "))
			continue
		}
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	return p.do(ctx, req)
}

func (p *Pool) do(ctx context.Context, req *http.Request) ([]byte, error) {
	release, err := p.lease(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, URL: req.URL.String()}
	}
	return io.ReadAll(resp.Body)
}

// partialTotal reads the full length from "Content-Range: bytes a-b/total".
func partialTotal(resp *http.Response, offset int64) int64 {
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if i := strings.LastIndexByte(cr, '/'); i >= 0 {
			var total int64
			if _, err := fmt.Sscanf(cr[i+1:], "%d", &total); err == nil && total > 0 {
				return total
			}
		}
	}
	if resp.ContentLength >= 0 {
		return offset + resp.ContentLength
	}
	return -1
}
