package proxy

import (
	"context"
	"fmt"
	log "log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

const DefaultTimeout = 120 * time.Second

// NewClient returns an HTTP client routed through socksAddr, or a direct one
// when socksAddr is empty. A zero timeout leaves streaming bodies unbounded.
func NewClient(socksAddr string, timeout time.Duration) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if socksAddr != "" {
		dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socks5 %s: %w", socksAddr, err)
		}

		transport.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
		log.Debug("Using socks proxy", "addr", socksAddr)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}
