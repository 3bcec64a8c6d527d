package netdump

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/netdumpsystems/netdump-go/pkg/obfuscate"
)

func TestOptions_defaults(t *testing.T) {
	t.Setenv("NETDUMP_LEVEL", "")
	t.Setenv("NETDUMP_DIR", "")
	t.Setenv("NETDUMP_MAX_SIZE", "")

	var o *Options
	o, err := o.parse()
	require.NoError(t, err)

	require.Equal(t, LevelNone, o.Level)
	require.Equal(t, "net-log", filepath.Base(o.Dir))
	require.Equal(t, DefaultDir(), o.Dir)
	require.Equal(t, MinMaxSize, o.MaxSize)
	require.Equal(t, obfuscate.Hashed{}, o.Obfuscator)
	require.True(t, o.SelectRequests(nil))
	require.NotNil(t, o.OnError)
	require.NotNil(t, o.Logger)
	require.Equal(t, time.Second, o.ErrorReportInterval)
	require.Equal(t, http.DefaultClient, o.HTTPClient)
	require.False(t, o.SyncWrites)
}

func TestOptions_environment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NETDUMP_LEVEL", "headers")
	t.Setenv("NETDUMP_DIR", dir)
	t.Setenv("NETDUMP_MAX_SIZE", "20971520")

	o, err := (&Options{}).parse()
	require.NoError(t, err)
	require.Equal(t, LevelHeaders, o.Level)
	require.Equal(t, dir, o.Dir)
	require.Equal(t, int64(20<<20), o.MaxSize)
}

func TestOptions_overrides(t *testing.T) {
	t.Setenv("NETDUMP_LEVEL", "headers")
	var onErr error
	client := &http.Client{}
	logger := zerolog.Nop()

	o, err := (&Options{
		Level:               LevelBody,
		Dir:                 "/tmp/somewhere",
		MaxSize:             64 << 20,
		AllowedDomains:      []string{"example.com"},
		OnError:             func(e error) { onErr = e },
		ErrorReportInterval: 5 * time.Second,
		Logger:              &logger,
		HTTPClient:          client,
	}).parse()
	require.NoError(t, err)

	require.Equal(t, LevelBody, o.Level)
	require.Equal(t, "/tmp/somewhere", o.Dir)
	require.Equal(t, int64(64<<20), o.MaxSize)
	o.OnError(fmt.Errorf("test error"))
	require.Equal(t, "test error", onErr.Error())
	require.Equal(t, 5*time.Second, o.ErrorReportInterval)
	require.Same(t, &logger, o.Logger)
	require.Equal(t, client, o.HTTPClient)

	require.True(t, o.SelectRequests(&http.Request{URL: &url.URL{Host: "api.example.com"}}))
	require.False(t, o.SelectRequests(&http.Request{URL: &url.URL{Host: "other.org"}}))
}

func TestOptions_minimumSize(t *testing.T) {
	for _, size := range []int64{1, 1024, -5} {
		o, err := (&Options{MaxSize: size}).parse()
		require.NoError(t, err)
		require.Equal(t, MinMaxSize, o.MaxSize)
	}
}

func TestOptions_errors(t *testing.T) {
	for _, o := range []*Options{
		{Level: Level(7)},
		{ErrorReportInterval: -time.Second},
		{RedactRequestBodyKeys: []string{"a..b"}},
	} {
		_, err := New(o)
		require.Error(t, err)
	}

	t.Setenv("NETDUMP_LEVEL", "loud")
	_, err := (&Options{}).parse()
	require.ErrorContains(t, err, "NETDUMP_LEVEL")

	t.Setenv("NETDUMP_LEVEL", "")
	t.Setenv("NETDUMP_MAX_SIZE", "ten")
	_, err = (&Options{}).parse()
	require.ErrorContains(t, err, "NETDUMP_MAX_SIZE")
}
