package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// UpstreamTLSConfig returns the TLS floor for outbound calls to model
// providers: TLS 1.2 minimum, AEAD cipher suites only.
func UpstreamTLSConfig() *tls.Config {
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

// UpstreamTransport returns an http.Transport configured with
// UpstreamTLSConfig plus the connection-pooling/keepalive settings a
// provider adapter making repeated calls to the same host wants.
func UpstreamTransport() *http.Transport {
	return &http.Transport{
		TLSClientConfig: UpstreamTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// UpstreamHTTPClient returns an *http.Client built on UpstreamTransport —
// the drop-in replacement for &http.Client{Timeout: timeout} that the
// gemini, vertexai and openrouter adapters construct in their New().
func UpstreamHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: UpstreamTransport(),
	}
}
