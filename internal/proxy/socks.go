package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// NewHTTPClient returns a client for the LLM backends. With an empty addr
// connections are direct; otherwise they go through the SOCKS5 proxy at
// addr, given as host:port or socks5://[user:pass@]host:port.
//
// timeout bounds the wait for response headers only. Replies are streamed
// and may take longer than that to arrive in full.
func NewHTTPClient(addr string, timeout time.Duration) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	if addr == "" {
		return &http.Client{Transport: transport}, nil
	}

	host, auth, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}

	dialer, err := proxy.SOCKS5("tcp", host, auth, proxy.Direct)
	if err != nil {
		return nil, err
	}

	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			return cd.DialContext(ctx, network, addr)
		}
		return dialer.Dial(network, addr)
	}

	transport.Proxy = nil
	transport.DialContext = dial
	return &http.Client{Transport: transport}, nil
}

func parseAddr(addr string) (string, *proxy.Auth, error) {
	if !strings.Contains(addr, "://") {
		return addr, nil, nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", nil, fmt.Errorf("parse proxy address: %w", err)
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return "", nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", nil, fmt.Errorf("proxy address %q has no host", addr)
	}

	var auth *proxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pass}
	}
	return u.Host, auth, nil
}
