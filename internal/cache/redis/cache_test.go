package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	data    map[string]string
	ttls    map[string]time.Duration
	failGet bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeClient) Get(_ context.Context, key string) *goredis.StringCmd {
	if f.failGet {
		return goredis.NewStringResult("", errors.New("connection reset"))
	}
	v, ok := f.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (f *fakeClient) Set(_ context.Context, key string, value any, exp time.Duration) *goredis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = exp
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Ping(context.Context) *goredis.StatusCmd {
	return goredis.NewStatusResult("PONG", nil)
}

func (f *fakeClient) Close() error { return nil }

func TestCacheRoundTripWithPrefix(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	c := newWithClient(fc, "osv:imo:")
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "9123456", []byte(`{"vessel_name":"SEA HAWK"}`), 24*time.Hour))
	require.Contains(t, fc.data, "osv:imo:9123456")
	require.Equal(t, 24*time.Hour, fc.ttls["osv:imo:9123456"])

	got, ok, err := c.Get(ctx, "9123456")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"vessel_name":"SEA HAWK"}`, string(got))
	require.NoError(t, c.Ping(ctx))
}

func TestCacheMissIsNotAnError(t *testing.T) {
	t.Parallel()

	c := newWithClient(newFakeClient(), "")
	_, ok, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCacheWrapsErrors(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	fc.failGet = true
	c := newWithClient(fc, "")
	_, _, err := c.Get(context.Background(), "k")
	require.ErrorContains(t, err, "connection reset")
}

func TestNewRequiresAddr(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}
