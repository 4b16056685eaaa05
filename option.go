package payrail

import (
	"net/http"
	"time"

	"github.com/vitwit/payrail/clients"
	"github.com/vitwit/payrail/logger"
	"github.com/vitwit/payrail/merchant"
	"github.com/vitwit/payrail/metrics"
)

type Option func(*Payrail)

func WithLogger(l logger.Logger) Option {
	return func(p *Payrail) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(p *Payrail) {
		if r != nil {
			p.metrics = r
		}
	}
}

// WithTimeout bounds each verification. It overrides timeouts.verification.
func WithTimeout(t time.Duration) Option {
	return func(p *Payrail) {
		if t > 0 {
			p.timeout = t
		}
	}
}

// WithHTTPClient sets the client used to reach facilitators.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Payrail) {
		p.httpClient = c
	}
}

// WithDialers replaces how chain adapters are opened. A nil dialer keeps the
// default.
func WithDialers(evm clients.EVMDialer, sol clients.SolanaDialer) Option {
	return func(p *Payrail) {
		p.evmDialer = evm
		p.solDialer = sol
	}
}

// WithFulfiller sets what a paid purchase produces.
func WithFulfiller(f merchant.Fulfiller) Option {
	return func(p *Payrail) {
		p.fulfiller = f
	}
}
