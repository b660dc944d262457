package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	statsd.NoOpClient

	mu      sync.Mutex
	counts  map[string][][]string
	timings map[string][]time.Duration
	fail    bool
}

func newRecordingClient() *recordingClient {
	return &recordingClient{
		counts:  make(map[string][][]string),
		timings: make(map[string][]time.Duration),
	}
}

func (c *recordingClient) Incr(name string, tags []string, rate float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name] = append(c.counts[name], tags)
	if c.fail {
		return errors.New("socket closed")
	}
	return nil
}

func (c *recordingClient) Timing(name string, value time.Duration, tags []string, rate float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timings[name] = append(c.timings[name], value)
	return nil
}

func TestRecorderEmitsTaggedMetrics(t *testing.T) {
	client := newRecordingClient()
	r := NewRecorderWithClient(client)

	r.Request("mp3")
	r.Failure("mp3", "DECODING_FAILED", "uploaded")
	r.Duration("wav", "jazz", 120*time.Millisecond)
	r.StageDuration("decoded", 40*time.Millisecond)

	require.Len(t, client.counts[MetricRequests], 1)
	assert.Equal(t, []string{"format:mp3"}, client.counts[MetricRequests][0])
	assert.Equal(t, []string{"format:mp3", "code:DECODING_FAILED", "stage:uploaded"}, client.counts[MetricFailures][0])
	assert.Equal(t, []time.Duration{120 * time.Millisecond}, client.timings[MetricDuration])
	assert.Equal(t, []time.Duration{40 * time.Millisecond}, client.timings[MetricStageDuration])
}

func TestRecorderSwallowsSendErrors(t *testing.T) {
	client := newRecordingClient()
	client.fail = true

	r := NewRecorderWithClient(client)
	assert.NotPanics(t, func() { r.Request("wav") })
	assert.Len(t, client.counts[MetricRequests], 1)
}

func TestDisabledRecorderIsNoop(t *testing.T) {
	r, err := NewRecorder(Config{Enabled: false, Address: "unused:0"})
	require.NoError(t, err)

	r.Request("wav")
	r.Duration("wav", "rock", time.Second)
	assert.NoError(t, r.Close())
}

func TestEnabledRecorderUsesUDP(t *testing.T) {
	r, err := NewRecorder(Config{
		Enabled:   true,
		Address:   "127.0.0.1:8125",
		Namespace: "genre_sonar.",
		Tags:      []string{"env:test"},
	})
	require.NoError(t, err)
	r.Request("wav")
	assert.NoError(t, r.Close())
}
