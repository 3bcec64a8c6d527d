package netdump

import (
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/netdumpsystems/netdump-go/pkg/disklru"
	"github.com/netdumpsystems/netdump-go/pkg/metrics"
	"github.com/netdumpsystems/netdump-go/pkg/redact"
	"github.com/netdumpsystems/netdump-go/pkg/transcript"
)

// Level selects how much of an exchange is recorded.
//
// It lives in the transcript package so that the renderer does not depend
// on this one; the alias keeps a single import for callers.
type Level = transcript.Level

const (
	LevelNone    = transcript.LevelNone
	LevelBasic   = transcript.LevelBasic
	LevelHeaders = transcript.LevelHeaders
	LevelBody    = transcript.LevelBody
)

// ParseLevel parses "none", "basic", "headers" or "body" in any case.
func ParseLevel(s string) (Level, error) {
	return transcript.ParseLevel(s)
}

// Chain is one step of an HTTP call: the request about to be sent, the
// protocol of the connection if known, and a way to send a request further
// down.
type Chain interface {
	Request() *http.Request
	Protocol() string
	Proceed(*http.Request) (*http.Response, error)
}

// Service records HTTP exchanges as text transcripts in a bounded on-disk
// store.
//
// Transcripts are written synchronously on the calling goroutine. Call
// [Service.Close] before your program exits to flush the store journal.
type Service struct {
	// DefaultClient is a wrapped version of http.DefaultClient
	// If you'd like to record all requests, set
	// http.DefaultClient = nd.DefaultClient.
	DefaultClient *http.Client

	options  *Options
	level    atomic.Int32
	seq      atomic.Uint64
	store    *disklru.Cache
	rules    *redact.Rules
	log      zerolog.Logger
	metrics  *metrics.Interceptor
	reporter *rate.Limiter
}
