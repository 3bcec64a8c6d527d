// package netdump records HTTP client traffic as plain text transcripts in a
// size-bounded directory on disk.
//
// You can use it globally by overriding [http.DefaultClient] with a netdump
// enabled version, or more selectively by wrapping specific clients in your
// codebase. Custom transports can call [Service.Intercept] with their own
// [Chain].
//
// Each exchange becomes one transcript file. The oldest transcripts are
// evicted once the directory grows beyond [Options.MaxSize].
package netdump

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/netdumpsystems/netdump-go/pkg/disklru"
	"github.com/netdumpsystems/netdump-go/pkg/metrics"
	"github.com/netdumpsystems/netdump-go/pkg/redact"
)

// New creates a new netdump service.
// An error is returned only if the configuration is invalid, including a
// Registry that holds conflicting metrics. Services sharing a Registry share
// their metrics. If the store cannot be opened the error is passed to
// OnError and the service forwards requests without recording them.
func New(o *Options) (*Service, error) {
	o, err := o.parse()
	if err != nil {
		return nil, err
	}

	rules, err := redact.New(o.RedactRequestHeaderKeys, o.RedactRequestBodyKeys, o.RedactResponseBodyKeys)
	if err != nil {
		return nil, fmt.Errorf("netdump: %w", err)
	}

	nd := &Service{
		options:  o,
		rules:    rules,
		log:      o.Logger.With().Str("component", "netdump").Logger(),
		reporter: rate.NewLimiter(rate.Every(o.ErrorReportInterval), 1),
	}
	nd.level.Store(int32(o.Level))

	var storeMetrics *metrics.Store
	if o.Registry != nil {
		if nd.metrics, err = metrics.NewInterceptor(o.Registry); err != nil {
			return nil, fmt.Errorf("netdump: %w", err)
		}
		if storeMetrics, err = metrics.NewStore(o.Registry); err != nil {
			return nil, fmt.Errorf("netdump: %w", err)
		}
	}

	store, err := disklru.Open(o.Dir, o.MaxSize, &disklru.Options{
		Logger:  o.Logger,
		Metrics: storeMetrics,
		Sync:    o.SyncWrites,
	})
	if err != nil {
		nd.handleError(fmt.Errorf("netdump: open store: %w", err))
	} else {
		nd.store = store
	}

	if !o.DisableDefaultWrappedClient {
		nd.DefaultClient = nd.Wrap(o.HTTPClient)
	}
	return nd, nil
}

// Wrap returns a new http client that calls the original and
// also records each exchange.
func (nd *Service) Wrap(client *http.Client) *http.Client {
	return &http.Client{
		Transport:     nd.RoundTripper(client.Transport),
		CheckRedirect: client.CheckRedirect,
		Jar:           client.Jar,
		Timeout:       client.Timeout,
	}
}

// RoundTripper returns a transport that records each exchange and sends
// requests through next (or http.DefaultTransport if next is nil).
func (nd *Service) RoundTripper(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &roundTripper{nd: nd, next: next}
}

// SetLevel changes the level of subsequent exchanges. It is safe to call
// while requests are in flight.
func (nd *Service) SetLevel(l Level) {
	nd.level.Store(int32(l))
}

// Level returns the current level.
func (nd *Service) Level() Level {
	return Level(nd.level.Load())
}

// Store returns the transcript store, or nil if it could not be opened.
func (nd *Service) Store() *disklru.Cache {
	return nd.store
}

// Flush makes every stored transcript durable.
func (nd *Service) Flush() error {
	if nd.store == nil {
		return nil
	}
	return nd.store.Flush()
}

// Close flushes and closes the store. Requests sent through the service
// afterwards are forwarded without being recorded.
func (nd *Service) Close() error {
	if nd.store == nil {
		return nil
	}
	return nd.store.Close()
}

func (nd *Service) handleError(err error) {
	if !nd.reporter.Allow() {
		nd.log.Debug().Err(err).Msg("error report suppressed")
		return
	}
	nd.options.OnError(err)
}
