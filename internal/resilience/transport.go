package resilience

import (
	"net"
	"net/http"
	"time"
)

// ClientConfig sizes the connection pool kept open to one upstream service.
type ClientConfig struct {
	MaxIdle               int
	MaxPerHost            int
	IdleTimeout           time.Duration
	ResponseHeaderTimeout time.Duration
}

// DefaultClientConfig suits a single model server taking concurrent requests.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxIdle:               32,
		MaxPerHost:            16,
		IdleTimeout:           90 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
}

// NewPooledClient returns an HTTP client whose transport reuses connections
// to the upstream. Per-call deadlines come from the request context.
func NewPooledClient(cfg ClientConfig) *http.Client {
	def := DefaultClientConfig()
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = def.MaxIdle
	}
	if cfg.MaxPerHost <= 0 {
		cfg.MaxPerHost = def.MaxPerHost
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.ResponseHeaderTimeout <= 0 {
		cfg.ResponseHeaderTimeout = def.ResponseHeaderTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdle,
		MaxConnsPerHost:       cfg.MaxPerHost,
		MaxIdleConnsPerHost:   cfg.MaxPerHost,
		IdleConnTimeout:       cfg.IdleTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}
}
