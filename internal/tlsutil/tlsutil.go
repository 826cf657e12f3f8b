// Package tlsutil provides the hardened HTTP transport used to talk to the
// aimodal backend.
// 安全加固：TLS 1.2+，仅 AEAD 密码套件。
package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/BaSui01/aimodal/config"
)

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

// BackendTransport returns an http.Transport for backend calls.
// Proxy settings come from the environment. The dial timeout is capped by
// the configured request timeout.
func BackendTransport(cfg config.BackendConfig) *http.Transport {
	dialTimeout := 10 * time.Second
	if cfg.Timeout > 0 && cfg.Timeout < dialTimeout {
		dialTimeout = cfg.Timeout
	}
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// BackendHTTPClient returns the http.Client used by the backend client.
// The client has no overall timeout; deadlines are applied per request
// through the context.
func BackendHTTPClient(cfg config.BackendConfig) *http.Client {
	return &http.Client{
		Transport: BackendTransport(cfg),
	}
}
