package netdump

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/netdumpsystems/netdump-go/pkg/disklru"
	"github.com/netdumpsystems/netdump-go/pkg/exchange"
	"github.com/netdumpsystems/netdump-go/pkg/transcript"
)

// drop reasons reported in netdump_transcripts_dropped_total
const (
	dropBusy        = "busy"
	dropInvalidKey  = "invalid_key"
	dropStorage     = "storage"
	dropUnavailable = "unavailable"
)

type roundTripper struct {
	nd   *Service
	next http.RoundTripper
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt.nd.Intercept(&transportChain{req: req, next: rt.next})
}

// transportChain adapts an http.RoundTripper to Chain. The protocol is only
// known once the response arrives.
type transportChain struct {
	req  *http.Request
	next http.RoundTripper
}

func (c *transportChain) Request() *http.Request { return c.req }

func (c *transportChain) Protocol() string { return "" }

func (c *transportChain) Proceed(r *http.Request) (*http.Response, error) {
	return c.next.RoundTrip(r)
}

// Intercept sends the chain's request, records the exchange at the current
// level and returns the response and error of the chain unchanged. Bodies
// read for the transcript are replaced by readers that reproduce them.
func (nd *Service) Intercept(chain Chain) (*http.Response, error) {
	req := chain.Request()
	level := nd.Level()
	if level == LevelNone {
		return chain.Proceed(req)
	}
	if !nd.options.SelectRequests(req) {
		nd.metrics.RecordExchange("skipped")
		return chain.Proceed(req)
	}

	captureBodies := level >= LevelBody
	id := uuid.New().String()
	ereq, forward := exchange.NewRequest(id, req, captureBodies)

	ereq.SentAt = exchange.Clock()
	res, err := chain.Proceed(forward)

	switch proto := chain.Protocol(); {
	case proto != "":
		ereq.Proto = proto
	case res != nil && res.Proto != "":
		ereq.Proto = res.Proto
	}

	ex := &exchange.Exchange{Request: ereq}
	switch {
	case err != nil:
		ex.Err = err
	case res == nil:
		ex.Err = exchange.ErrNilResponse
	case res.Body == nil:
		ex.Err = exchange.ErrNilBody
	default:
		ex.Response = exchange.NewResponse(ereq, res, captureBodies)
	}

	if ex.Err != nil {
		nd.metrics.RecordExchange("failure")
	} else {
		nd.metrics.RecordExchange("response")
	}
	nd.record(ex, level)
	return res, err
}

// record renders ex and stores the transcript. Failures drop the
// transcript and never reach the caller of the request.
func (nd *Service) record(ex *exchange.Exchange, level Level) {
	text := transcript.Renderer{Level: level, Redact: nd.rules}.Render(ex)

	logical := fmt.Sprintf("%s%d-%d", ex.Request.URL, ex.Request.RequestedAt.UnixMilli(), nd.seq.Add(1))
	key := nd.options.Obfuscator.NameFor(logical)

	nd.log.Debug().
		Str("id", ex.Request.ID).
		Str("key", key).
		Str("transcript", text).
		Msg("exchange recorded")

	if nd.store == nil {
		nd.metrics.RecordDrop(dropUnavailable)
		return
	}

	ed, err := nd.store.Edit(key)
	switch {
	case err == nil:
	case errors.Is(err, disklru.ErrEditInProgress):
		nd.metrics.RecordDrop(dropBusy)
		nd.log.Debug().Str("key", key).Msg("transcript dropped, key is being written")
		return
	case errors.Is(err, disklru.ErrInvalidKey):
		nd.metrics.RecordDrop(dropInvalidKey)
		nd.handleError(fmt.Errorf("netdump: obfuscator returned an unusable key: %w", err))
		return
	default:
		nd.drop(key, err)
		return
	}

	if _, err := io.WriteString(ed, nd.options.Obfuscator.ContentFor(text)); err != nil {
		_ = ed.Abort()
		nd.drop(key, err)
		return
	}
	if err := ed.Commit(); err != nil {
		nd.drop(key, err)
		return
	}
	if err := nd.store.Flush(); err != nil && !errors.Is(err, disklru.ErrClosed) {
		nd.handleError(fmt.Errorf("netdump: flush store: %w", err))
	}
}

func (nd *Service) drop(key string, err error) {
	if errors.Is(err, disklru.ErrClosed) {
		nd.metrics.RecordDrop(dropUnavailable)
		return
	}
	nd.metrics.RecordDrop(dropStorage)
	nd.log.Warn().Err(err).Str("key", key).Msg("transcript dropped")
	nd.handleError(fmt.Errorf("netdump: store transcript: %w", err))
}
