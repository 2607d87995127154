package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// UserAgent 是未显式设置时附加的默认 User-Agent。
const UserAgent = "crewflow/1.0 (+https://github.com/BaSui01/crewflow)"

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// ClientOptions 控制 NewClient 构建的客户端。
type ClientOptions struct {
	// Timeout 为整个请求的超时，0 表示不限（流式响应）。
	Timeout time.Duration
	// Headers 在请求未设置同名头时补上。
	Headers map[string]string
	// MaxIdleConnsPerHost 默认 10；本地 Ollama 上的并发 agent 会复用连接。
	MaxIdleConnsPerHost int
	// NoProxy 为 true 时忽略 HTTP_PROXY/HTTPS_PROXY。
	NoProxy bool
}

// SecureTransport returns an http.Transport with TLS hardening.
func SecureTransport(opts ClientOptions) *http.Transport {
	perHost := opts.MaxIdleConnsPerHost
	if perHost <= 0 {
		perHost = 10
	}
	tr := &http.Transport{
		TLSClientConfig: DefaultTLSConfig(),
		Proxy:           http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   perHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if opts.NoProxy {
		tr.Proxy = nil
	}
	return tr
}

// NewClient returns an http.Client with TLS hardening and default headers.
func NewClient(opts ClientOptions) *http.Client {
	headers := map[string]string{"User-Agent": UserAgent}
	for k, v := range opts.Headers {
		headers[http.CanonicalHeaderKey(k)] = v
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: &headerTransport{base: SecureTransport(opts), headers: headers},
	}
}

// SecureHTTPClient is NewClient with only a timeout.
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return NewClient(ClientOptions{Timeout: timeout})
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var missing []string
	for k := range t.headers {
		if req.Header.Get(k) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		// RoundTripper 不得修改调用方的请求
		req = req.Clone(req.Context())
		for _, k := range missing {
			req.Header.Set(k, t.headers[k])
		}
	}
	return t.base.RoundTrip(req)
}
