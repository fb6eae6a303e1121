package service

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti"
	"github.com/bluetti2mqtt/bluetti2mqtt/pkg/bluetti/bluettitest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegisterDiscovery(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	fake := bluettitest.NewFakeTransport("11:22:33:44:55:66", "AC3002235000123456")
	fake.SetRegister(12, 0xBEEF)
	fake.SetException(25, bluetti.ExceptionIllegalDataAddress)
	require.NoError(fake.Open(context.Background()))

	d, err := NewRegisterDiscovery(fake, 0, 35, 10, time.Second, zap.NewNop())
	require.NoError(err)

	var out bytes.Buffer
	summary, err := d.Run(context.Background(), &out)
	require.NoError(err)
	assert.Equal(DiscoverySummary{Ranges: 4, Readable: 3, Exceptions: 1}, summary)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(lines, 4)

	var second DiscoveryEntry
	require.NoError(json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(uint16(10), second.Start)
	assert.Equal(uint16(10), second.Quantity)
	require.Len(second.Response, 40)
	assert.Equal("beef", second.Response[8:12])

	var third DiscoveryEntry
	require.NoError(json.Unmarshal([]byte(lines[2]), &third))
	assert.Equal("ILLEGAL_DATA_ADDRESS", third.Exception)

	var last DiscoveryEntry
	require.NoError(json.Unmarshal([]byte(lines[3]), &last))
	assert.Equal(uint16(30), last.Start)
	assert.Equal(uint16(5), last.Quantity)
}

func TestRegisterDiscoveryTransportErrors(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	fake := bluettitest.NewFakeTransport("11:22:33:44:55:66", "AC3002235000123456")
	require.NoError(fake.Open(context.Background()))
	fake.FailNext(1, bluetti.ErrTimeout)

	d, err := NewRegisterDiscovery(fake, 0, 20, 10, time.Second, zap.NewNop())
	require.NoError(err)

	summary, err := d.Run(context.Background(), &bytes.Buffer{})
	require.NoError(err)
	assert.Equal(1, summary.Errors)
	assert.Equal(1, summary.Readable)
}

func TestRegisterDiscoveryCancel(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	fake := bluettitest.NewFakeTransport("11:22:33:44:55:66", "AC3002235000123456")
	require.NoError(fake.Open(context.Background()))

	d, err := NewRegisterDiscovery(fake, 0, 6000, 10, time.Second, zap.NewNop())
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := d.Run(ctx, &bytes.Buffer{})
	assert.ErrorIs(err, context.Canceled)
	assert.Equal(0, summary.Ranges)
	assert.Empty(fake.Performed())
}

func TestRegisterDiscoveryBounds(t *testing.T) {

	assert := assert.New(t)

	fake := bluettitest.NewFakeTransport("11:22:33:44:55:66", "AC3002235000123456")
	_, err := NewRegisterDiscovery(fake, 0, 100, 0, time.Second, zap.NewNop())
	assert.Error(err)
	_, err = NewRegisterDiscovery(fake, 0, 100, 126, time.Second, zap.NewNop())
	assert.Error(err)
	_, err = NewRegisterDiscovery(fake, 100, 100, 10, time.Second, zap.NewNop())
	assert.Error(err)
}
