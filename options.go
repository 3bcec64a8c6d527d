package netdump

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/netdumpsystems/netdump-go/pkg/obfuscate"
)

// MinMaxSize is the smallest store capacity. Smaller values are raised to it.
const MinMaxSize int64 = 10 << 20

// Options configure the netdump service
type Options struct {
	// Level selects how much of each exchange is recorded.
	// (defaults to the NETDUMP_LEVEL environment variable, or LevelNone if not set)
	Level Level

	// Dir is where transcripts are stored.
	// (defaults to the NETDUMP_DIR environment variable,
	// or "net-log" in the user cache directory if not set)
	Dir string

	// MaxSize is the store capacity in bytes. Values below MinMaxSize are
	// raised to MinMaxSize.
	// (defaults to the NETDUMP_MAX_SIZE environment variable, or MinMaxSize)
	MaxSize int64

	// SyncWrites fsyncs every transcript before it becomes visible.
	SyncWrites bool

	// Obfuscator maps logical keys to storage keys and may transform
	// transcripts before they are written.
	// (defaults to obfuscate.Hashed, which hashes keys and stores text as is)
	Obfuscator obfuscate.Obfuscator

	// RedactRequestHeaderKeys lists headers whose values are replaced by the
	// sha1 of their contents. Matching is case insensitive and applies to
	// request and response headers.
	RedactRequestHeaderKeys []string

	// RedactRequestBodyKeys lists JSON paths in request bodies to redact,
	// e.g. "user.password" or "cards[].number".
	RedactRequestBodyKeys []string

	// RedactResponseBodyKeys lists JSON paths in response bodies to redact.
	RedactResponseBodyKeys []string

	// List of strings to match against the host of the request URL in order to determine
	// whether or not to record the request, based on the domain. Case sensitive.
	// (by default all domains are recorded)
	AllowedDomains []string

	// SelectRequests selects which requests are recorded.
	// Return true to record the request.
	// Overrides `AllowedDomains`
	// (by default all requests are recorded)
	SelectRequests func(r *http.Request) bool

	// OnError allows you to handle errors storing transcripts. Calls are
	// limited to one per ErrorReportInterval; further errors are only logged.
	// (by default errors are logged at warn level)
	OnError func(error)

	// ErrorReportInterval is the minimum time between two OnError calls.
	// (defaults to 1 * time.Second)
	ErrorReportInterval time.Duration

	// Logger receives diagnostics. Transcripts are logged at debug level.
	// (defaults to a logger writing to os.Stderr at info level)
	Logger *zerolog.Logger

	// Registry, if set, receives the service and store metrics.
	Registry prometheus.Registerer

	// The HTTPClient wrapped by Service.DefaultClient
	// (defaults to http.DefaultClient)
	HTTPClient *http.Client

	// DisableDefaultWrappedClient leaves Service.DefaultClient nil.
	DisableDefaultWrappedClient bool
}

func (o *Options) parse() (*Options, error) {
	if o == nil {
		o = &Options{}
	} else {
		copy := *o
		o = &copy
	}

	if o.Level == LevelNone {
		if env := os.Getenv("NETDUMP_LEVEL"); env != "" {
			level, err := ParseLevel(env)
			if err != nil {
				return nil, fmt.Errorf("netdump: invalid NETDUMP_LEVEL: %w", err)
			}
			o.Level = level
		}
	}
	if o.Level < LevelNone || o.Level > LevelBody {
		return nil, fmt.Errorf("netdump: invalid Level %d", o.Level)
	}

	if o.Dir == "" {
		o.Dir = os.Getenv("NETDUMP_DIR")
	}
	if o.Dir == "" {
		o.Dir = DefaultDir()
	}

	if o.MaxSize == 0 {
		if env := os.Getenv("NETDUMP_MAX_SIZE"); env != "" {
			size, err := strconv.ParseInt(env, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("netdump: invalid NETDUMP_MAX_SIZE: %w", err)
			}
			o.MaxSize = size
		}
	}
	if o.MaxSize < MinMaxSize {
		o.MaxSize = MinMaxSize
	}

	if o.Obfuscator == nil {
		o.Obfuscator = obfuscate.Hashed{}
	}

	if o.ErrorReportInterval == 0 {
		o.ErrorReportInterval = time.Second
	}
	if o.ErrorReportInterval < 0 {
		return nil, fmt.Errorf("netdump: ErrorReportInterval must not be negative")
	}

	if o.Logger == nil {
		logger := zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()
		o.Logger = &logger
	}

	if o.OnError == nil {
		logger := o.Logger
		o.OnError = func(e error) {
			logger.Warn().Err(e).Msg("netdump: transcript not stored")
		}
	}

	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}

	if o.SelectRequests == nil {
		if len(o.AllowedDomains) > 0 {
			domains := o.AllowedDomains
			o.SelectRequests = func(r *http.Request) bool {
				if r != nil && r.URL != nil {
					return contains(r.URL.Host, domains)
				}
				return true
			}
		} else {
			o.SelectRequests = func(*http.Request) bool { return true }
		}
	}

	return o, nil
}

// DefaultDir is the store directory used when neither Options.Dir nor
// NETDUMP_DIR is set: "net-log" in the user cache directory.
func DefaultDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "net-log")
}

// Function to determine if a target string contains any value from an array of strings
func contains(target string, values []string) bool {
	for _, value := range values {
		if strings.Contains(target, value) {
			return true
		}
	}
	return false
}
