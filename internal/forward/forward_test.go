// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package forward

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/gaugelink/pkg/espnow"
	"github.com/Thermoquad/gaugelink/pkg/telemetry"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu   sync.Mutex
	s    telemetry.Snapshot
	live bool
}

func (r *fakeReader) set(s telemetry.Snapshot, live bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s, r.live = s, live
}

func (r *fakeReader) Read() (telemetry.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s, r.live
}

type fakeForwarder struct {
	mu     sync.Mutex
	sent   []telemetry.Snapshot
	lives  []bool
	fail   bool
	closed bool
}

func (f *fakeForwarder) Name() string { return "fake" }

func (f *fakeForwarder) Forward(_ context.Context, s telemetry.Snapshot, live bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, s)
	f.lives = append(f.lives, live)
	if f.fail {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeForwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// ============================================================
// Pump
// ============================================================

func TestPump_ForwardsOnlyChanges(t *testing.T) {
	reader := &fakeReader{}
	fwd := &fakeForwarder{}
	failing := &fakeForwarder{fail: true}
	p := NewPump(reader, time.Millisecond, fwd, failing)
	ctx := context.Background()

	assert.True(t, p.Poll(ctx), "first poll always forwards")
	assert.False(t, p.Poll(ctx))

	reader.set(telemetry.Snapshot{OilTemp: 90}, true)
	assert.True(t, p.Poll(ctx))
	assert.False(t, p.Poll(ctx))

	reader.set(telemetry.Snapshot{}, false)
	assert.True(t, p.Poll(ctx))

	require.Len(t, fwd.sent, 3)
	assert.Equal(t, []bool{false, true, false}, fwd.lives)
	assert.Len(t, failing.sent, 3, "a failing forwarder does not stop the others")
}

func TestPump_ResendsSteadyLiveSnapshot(t *testing.T) {
	reader := &fakeReader{}
	reader.set(telemetry.Snapshot{OilTemp: 90}, true)
	fwd := &fakeForwarder{}
	p := NewPump(reader, 100*time.Millisecond, fwd)
	p.SetKeepalive(time.Second)

	now := time.Unix(1000, 0)
	p.now = func() time.Time { return now }
	ctx := context.Background()

	assert.True(t, p.Poll(ctx))
	now = now.Add(999 * time.Millisecond)
	assert.False(t, p.Poll(ctx))
	now = now.Add(time.Millisecond)
	assert.True(t, p.Poll(ctx), "unchanged live snapshot is resent after the keepalive")
	now = now.Add(500 * time.Millisecond)
	assert.False(t, p.Poll(ctx))

	reader.set(telemetry.Snapshot{}, false)
	assert.True(t, p.Poll(ctx))
	now = now.Add(10 * time.Second)
	assert.False(t, p.Poll(ctx), "stale snapshots are not repeated")

	assert.Equal(t, []bool{true, true, false}, fwd.lives)
}

func TestPump_RunClosesForwarders(t *testing.T) {
	fwd := &fakeForwarder{}
	p := NewPump(&fakeReader{}, time.Millisecond, fwd)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Run(ctx)

	assert.Equal(t, context.DeadlineExceeded, err)
	fwd.mu.Lock()
	defer fwd.mu.Unlock()
	assert.True(t, fwd.closed)
	assert.Len(t, fwd.sent, 1)
}

// ============================================================
// UDP
// ============================================================

func TestUDPForwarder_SendsEnvelopes(t *testing.T) {
	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	source := espnow.MAC{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}
	addr := listener.LocalAddr().(*net.UDPAddr)
	fwd, err := NewUDPForwarder(UDPConfig{
		Server: "127.0.0.1",
		Port:   addr.Port,
		Source: source,
		Format: telemetry.FormatExtended,
	})
	require.NoError(t, err)
	defer fwd.Close()

	s := telemetry.Snapshot{OilTemp: 99, Gauge: telemetry.GaugeMulti, Extended: true}
	require.NoError(t, fwd.Forward(context.Background(), telemetry.Snapshot{}, false))
	require.NoError(t, fwd.Forward(context.Background(), s, true))

	buf := make([]byte, 1024)
	for i := 0; i < 2; i++ {
		require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := listener.ReadFrom(buf)
		require.NoError(t, err)

		envelope, err := espnow.Decode(buf[:n])
		require.NoError(t, err)
		assert.Equal(t, source, envelope.Source())
		assert.True(t, envelope.IsBroadcast())

		got, err := telemetry.Decode(telemetry.FormatExtended, envelope.Payload())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

// ============================================================
// Redis
// ============================================================

type fakeRedis struct {
	hashes    map[string]map[string]interface{}
	published map[string][][]byte
	expired   map[string]time.Duration
	hsetErr   error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		hashes:    make(map[string]map[string]interface{}),
		published: make(map[string][][]byte),
		expired:   make(map[string]time.Duration),
	}
}

func (r *fakeRedis) HSet(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	if r.hsetErr != nil {
		return redis.NewIntResult(0, r.hsetErr)
	}
	fields := values[0].(map[string]interface{})
	r.hashes[key] = fields
	return redis.NewIntResult(int64(len(fields)), nil)
}

func (r *fakeRedis) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	r.expired[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (r *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	r.published[channel] = append(r.published[channel], message.([]byte))
	return redis.NewIntResult(1, nil)
}

func (r *fakeRedis) Close() error { return nil }

func TestRedisForwarder_WritesHashAndPublishes(t *testing.T) {
	rdb := newFakeRedis()
	fwd := newRedisForwarder(rdb, RedisConfig{Addr: "localhost:6379", Key: "car", TTL: 10 * time.Second})

	s := telemetry.Snapshot{OilTemp: 101, EngineRPM: 3500}
	require.NoError(t, fwd.Forward(context.Background(), s, true))

	hash := rdb.hashes["car"]
	require.NotNil(t, hash)
	assert.Equal(t, float32(101), hash["oil_temp"])
	assert.Equal(t, uint32(3500), hash["engine_rpm"])
	assert.Equal(t, true, hash["live"])
	assert.Equal(t, 10*time.Second, rdb.expired["car"])

	require.Len(t, rdb.published["car:updates"], 1)
	got, err := telemetry.UnmarshalCBOR(rdb.published["car:updates"][0])
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestRedisForwarder_DefaultKeyAndErrors(t *testing.T) {
	rdb := newFakeRedis()
	fwd := newRedisForwarder(rdb, RedisConfig{Addr: "localhost:6379"})
	assert.Equal(t, "gaugelink:telemetry:updates", fwd.Channel())

	rdb.hsetErr = errors.New("READONLY")
	err := fwd.Forward(context.Background(), telemetry.Snapshot{}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READONLY")
	assert.Empty(t, rdb.published)
}
