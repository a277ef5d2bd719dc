package httpclient

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

type Options struct {
	Timeout time.Duration
	Proxy   string
}

// New builds an *http.Client with connection pooling, an optional proxy and
// transparent gzip decompression of response bodies.
func New(opts Options) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		IdleConnTimeout:     30 * time.Second,
		DisableCompression:  false,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			zap.L().Warn("invalid proxy address, continuing without proxy", zap.String("proxy", opts.Proxy), zap.Error(err))
		} else {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &compressedTransport{transport: transport},
	}
}

type compressedTransport struct {
	transport http.RoundTripper
}

func (c *compressedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Add("Accept-Encoding", "gzip")
	resp, err := c.transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			zap.L().Warn("gzip decode failed, returning raw body", zap.Error(err))
			return resp, nil
		}
		resp.Body = &gzipReadCloser{
			Reader: gzReader,
			closer: resp.Body,
		}
		resp.Header.Del("Content-Encoding")
	}

	return resp, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	closer io.ReadCloser
}

func (g *gzipReadCloser) Close() error {
	if err := g.Reader.Close(); err != nil {
		return err
	}
	return g.closer.Close()
}
