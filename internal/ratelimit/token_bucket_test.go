package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScripter answers EvalSha with a canned script result.
type fakeScripter struct {
	result any
	err    error
	keys   []string
	args   []any
}

func (f *fakeScripter) Eval(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.EvalSha(ctx, "", keys, args...)
}

func (f *fakeScripter) EvalSha(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	f.keys = keys
	f.args = args
	return redis.NewCmdResult(f.result, f.err)
}

func (f *fakeScripter) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeScripter) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeScripter) ScriptExists(context.Context, ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult([]bool{true}, nil)
}

func (f *fakeScripter) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func TestNewRedisTokenBucket_Validation(t *testing.T) {
	_, err := NewRedisTokenBucket(nil, Config{Burst: 1, Rate: 1})
	assert.Error(t, err)

	_, err = NewRedisTokenBucket(&fakeScripter{}, Config{Burst: 0, Rate: 1})
	assert.Error(t, err)

	_, err = NewRedisTokenBucket(&fakeScripter{}, Config{Burst: 1, Rate: 0})
	assert.Error(t, err)
}

func TestRedisTokenBucket_Allow(t *testing.T) {
	fake := &fakeScripter{result: []any{int64(1), int64(9), int64(0)}}
	bucket, err := NewRedisTokenBucket(fake, Config{Burst: 10, Rate: 5})
	require.NoError(t, err)
	bucket.now = func() time.Time { return time.UnixMilli(1_000) }

	d, err := bucket.Allow(context.Background(), " 10.0.0.1 ")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(9), d.Remaining)

	assert.Equal(t, []string{"pixelcut:ratelimit:10.0.0.1"}, fake.keys)
	require.Len(t, fake.args, 5)
	assert.Equal(t, int64(10), fake.args[0])
	assert.InDelta(t, 0.005, fake.args[1], 1e-9)
	assert.Equal(t, int64(1_000), fake.args[2])
}

func TestRedisTokenBucket_Rejects(t *testing.T) {
	fake := &fakeScripter{result: []any{int64(0), int64(0), int64(1500)}}
	bucket, err := NewRedisTokenBucket(fake, Config{Burst: 1, Rate: 1, KeyPrefix: "test"})
	require.NoError(t, err)

	d, err := bucket.Allow(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 1500*time.Millisecond, d.RetryAfter)
	assert.Equal(t, []string{"test:anonymous"}, fake.keys)
}

func TestRedisTokenBucket_ScriptError(t *testing.T) {
	fake := &fakeScripter{err: errors.New("connection refused")}
	bucket, err := NewRedisTokenBucket(fake, Config{Burst: 1, Rate: 1})
	require.NoError(t, err)

	_, err = bucket.Allow(context.Background(), "x")
	assert.Error(t, err)
}

func TestToInt64(t *testing.T) {
	for _, in := range []any{int64(7), 7, float64(7), "7"} {
		got, err := toInt64(in)
		require.NoError(t, err)
		assert.Equal(t, int64(7), got)
	}
	_, err := toInt64(struct{}{})
	assert.Error(t, err)
}
