package graph

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRouterAppliesFiltersInOrderAndPublishesSurvivors(t *testing.T) {
	src := newStubSampleSource(4)
	filters := []Filter{
		&DropComponentFilter{Name: "humidity"},
		&SelectByPathFilter{Predicate: Predicate{Pattern: "thermo/*"}},
	}
	router := NewRouter(src, filters, 4, zerolog.Nop())
	sub := router.SubscribeSamples()

	r := newTestReadout(testPath("thermo", "a"), map[string]float64{"temperature": 20, "humidity": 50})
	src.Publish(r)

	out, ok := recvWithTimeout(sub, time.Second)
	require.True(t, ok)
	_, ok = out.Get("humidity")
	require.False(t, ok)
	_, ok = out.Get("temperature")
	require.True(t, ok)

	src.Close()
	router.Stop()
}

func TestRouterDropsAtFirstFailingFilter(t *testing.T) {
	src := newStubSampleSource(4)
	filters := []Filter{
		&SelectByPathFilter{Predicate: Predicate{Pattern: "imu/*"}},
		&DropComponentFilter{Name: "temperature"}, // would panic-equivalent if reached incorrectly, but shouldn't run
	}
	router := NewRouter(src, filters, 4, zerolog.Nop())
	sub := router.SubscribeSamples()

	r := newTestReadout(testPath("thermo", "a"), map[string]float64{"temperature": 20})
	src.Publish(r)

	src.Close()
	router.Stop()

	_, ok := recvWithTimeout(sub, 100*time.Millisecond)
	require.False(t, ok)
}

func TestRouterClosesOutputWhenUpstreamCloses(t *testing.T) {
	src := newStubSampleSource(4)
	router := NewRouter(src, nil, 4, zerolog.Nop())
	sub := router.SubscribeSamples()

	src.Close()
	router.Stop()

	_, ok := recvWithTimeout(sub, time.Second)
	require.False(t, ok)
}
