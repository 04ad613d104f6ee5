// Package transport provides the network transports used to reach the hosted
// backend: an HTTP round tripper for the auth and row APIs and a websocket
// dialer for the change feed.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// =============================================================================
// TLS FINGERPRINT TRANSPORT
// =============================================================================
//
// Go's standard TLS client has a distinctive fingerprint that some hosted
// backends put behind aggressive edge rate limiting.
//
// Both transports here use uTLS to present a Chrome-like TLS fingerprint:
//
//   - HTTP: ALPN negotiates h2 or http/1.1, and Go's http2.Transport frames
//     the request when h2 wins.
//   - Websocket: the upgrade needs HTTP/1.1, so ALPN offers only http/1.1
//     while the rest of the Chrome hello is kept.
//
// =============================================================================

// NewChromeTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint. Supports both HTTP/2 and HTTP/1.1 based on ALPN negotiation.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	h2Transport := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr, nil)
		},
	}

	h1Transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr, nil)
		},
		ForceAttemptHTTP2: false,
	}

	return &chromeTransport{
		h2: h2Transport,
		h1: h1Transport,
	}
}

// NewChromeDialer creates a websocket dialer with Chrome's TLS fingerprint.
// Plain ws:// URLs are dialed without TLS as usual.
func NewChromeDialer(timeout time.Duration) *websocket.Dialer {
	dialer := &net.Dialer{Timeout: timeout}
	return &websocket.Dialer{
		HandshakeTimeout: timeout,
		NetDialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr, []string{"http/1.1"})
		},
	}
}

// chromeTransport wraps HTTP/2 and HTTP/1.1 transports with Chrome TLS fingerprint.
type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip implements http.RoundTripper.
// Tries HTTP/2 first, falls back to HTTP/1.1 if server doesn't support h2.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	return t.h1.RoundTrip(req)
}

// dialChromeTLS establishes a TLS connection with Chrome's fingerprint.
// A non-nil alpn replaces the protocols Chrome would offer.
func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string, alpn []string) (net.Conn, error) {
	// Extract hostname for SNI
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConfig := &utls.Config{
		ServerName: host,
	}

	var tlsConn *utls.UConn
	if alpn == nil {
		tlsConn = utls.UClient(conn, tlsConfig, utls.HelloChrome_Auto)
	} else {
		spec, err := utls.UTLSIdToSpec(utls.HelloChrome_Auto)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("chrome hello spec: %w", err)
		}
		for _, ext := range spec.Extensions {
			if a, ok := ext.(*utls.ALPNExtension); ok {
				a.AlpnProtocols = alpn
			}
		}
		tlsConn = utls.UClient(conn, tlsConfig, utls.HelloCustom)
		if err := tlsConn.ApplyPreset(&spec); err != nil {
			conn.Close()
			return nil, fmt.Errorf("apply hello spec: %w", err)
		}
	}

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
