package service

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"
	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti/bluettitest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func decodeEntries(t *testing.T, out string) []RawLogEntry {
	var entries []RawLogEntry
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var e RawLogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		entries = append(entries, e)
	}
	return entries
}

func TestRawLoggerCycle(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	fake := bluettitest.NewFakeTransport("11:22:33:44:55:66", "EB3A2237000123456")
	fake.SetRegister(43, 55)
	fake.SetException(3034, bluetti.ExceptionIllegalDataAddress)
	require.NoError(fake.Open(context.Background()))

	device, err := bluetti.BuildDevice(fake.Address(), fake.Name())
	require.NoError(err)

	var out bytes.Buffer
	l := NewRawLogger(fake, &out, time.Second, time.Second, zap.NewNop())
	l.device = device
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return ts }

	n, err := l.LogCycle(context.Background())
	require.NoError(err)
	entries := decodeEntries(t, out.String())
	require.Len(entries, n)
	require.Equal(len(device.PollingCommands()), n)

	first := entries[0]
	assert.Equal(ts, first.Time.UTC())
	assert.Equal("EB3A2237000123456", first.Device)
	assert.Equal("0103000a0028", first.Command[:12])
	assert.NotEmpty(first.Response)
	assert.Empty(first.Error)

	var failed int
	for _, e := range entries {
		if e.Error != "" {
			failed++
			assert.Empty(e.Response)
		}
	}
	assert.Equal(1, failed)
}

func TestRawLoggerRun(t *testing.T) {

	assert := assert.New(t)

	fake := bluettitest.NewFakeTransport("11:22:33:44:55:66", "EB3A2237000123456")

	var out syncBuffer
	l := NewRawLogger(fake, &out, 200*time.Millisecond, time.Second, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := l.Run(ctx, time.Second)
	assert.NoError(err)

	assert.NotEmpty(decodeEntries(t, out.String()))
	assert.False(fake.IsOpen())
}

func TestRawLoggerRunOpenError(t *testing.T) {

	assert := assert.New(t)

	fake := bluettitest.NewFakeTransport("11:22:33:44:55:66", "EB3A2237000123456")
	fake.OpenErr = bluettitest.ErrNoDevice

	l := NewRawLogger(fake, &bytes.Buffer{}, time.Second, time.Second, zap.NewNop())
	err := l.Run(context.Background(), time.Second)
	assert.ErrorIs(err, bluettitest.ErrNoDevice)
}
