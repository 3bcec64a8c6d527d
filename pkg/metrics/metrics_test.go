package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func Test_Store(t *testing.T) {
	t.Run("Records store state", func(t *testing.T) {
		s, err := NewStore(prometheus.NewRegistry())
		require.NoError(t, err)
		s.UpdateSize(3, 1024)
		s.RecordEviction()
		s.RecordCommit()
		s.RecordCommit()

		require.Equal(t, float64(3), testutil.ToFloat64(s.entries))
		require.Equal(t, float64(1024), testutil.ToFloat64(s.bytes))
		require.Equal(t, float64(1), testutil.ToFloat64(s.evictions))
		require.Equal(t, float64(2), testutil.ToFloat64(s.commits))
	})

	t.Run("Nil receivers are no-ops", func(t *testing.T) {
		var s *Store
		require.NotPanics(t, func() {
			s.UpdateSize(1, 1)
			s.RecordEviction()
			s.RecordCommit()
		})
		var i *Interceptor
		require.NotPanics(t, func() {
			i.RecordExchange("response")
			i.RecordDrop("busy")
		})
	})
}

func Test_Interceptor(t *testing.T) {
	i, err := NewInterceptor(prometheus.NewRegistry())
	require.NoError(t, err)
	i.RecordExchange("response")
	i.RecordExchange("failure")
	i.RecordExchange("response")
	i.RecordDrop("busy")

	require.Equal(t, float64(2), testutil.ToFloat64(i.exchanges.WithLabelValues("response")))
	require.Equal(t, float64(1), testutil.ToFloat64(i.exchanges.WithLabelValues("failure")))
	require.Equal(t, float64(1), testutil.ToFloat64(i.dropped.WithLabelValues("busy")))
}

func Test_Register(t *testing.T) {
	t.Run("Shares collectors registered twice", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		first, err := NewInterceptor(reg)
		require.NoError(t, err)
		second, err := NewInterceptor(reg)
		require.NoError(t, err)

		first.RecordDrop("busy")
		second.RecordDrop("busy")
		require.Equal(t, float64(2), testutil.ToFloat64(first.dropped.WithLabelValues("busy")))

		s1, err := NewStore(reg)
		require.NoError(t, err)
		s2, err := NewStore(reg)
		require.NoError(t, err)
		s1.RecordCommit()
		s2.RecordCommit()
		require.Equal(t, float64(2), testutil.ToFloat64(s2.commits))
	})

	t.Run("Fails on conflicting collectors", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netdump_exchanges_total",
			Help: "Total number of intercepted exchanges by outcome",
		}))
		_, err := NewInterceptor(reg)
		require.Error(t, err)
	})
}
