package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeList implements the list commands the queue uses. Calling any other
// Cmdable method panics on the nil embedded interface.
type fakeList struct {
	redis.Cmdable
	items   map[string][]string
	popErr  error
	timeout time.Duration
}

func newFakeList() *fakeList { return &fakeList{items: make(map[string][]string)} }

func (f *fakeList) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	for _, v := range values {
		f.items[key] = append([]string{v.(string)}, f.items[key]...)
	}
	return redis.NewIntResult(int64(len(f.items[key])), nil)
}

func (f *fakeList) BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	f.timeout = timeout
	if f.popErr != nil {
		return redis.NewStringSliceResult(nil, f.popErr)
	}
	key := keys[0]
	list := f.items[key]
	if len(list) == 0 {
		return redis.NewStringSliceResult(nil, redis.Nil)
	}
	last := list[len(list)-1]
	f.items[key] = list[:len(list)-1]
	return redis.NewStringSliceResult([]string{key, last}, nil)
}

func (f *fakeList) LLen(ctx context.Context, key string) *redis.IntCmd {
	return redis.NewIntResult(int64(len(f.items[key])), nil)
}

func TestQueueIsFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewRedisQueue(newFakeList(), "manimrender:jobs")

	for _, id := range []string{"job_1", "job_2", "job_3"} {
		if err := q.Push(ctx, id); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	if n, _ := q.Len(ctx); n != 3 {
		t.Fatalf("Len = %d", n)
	}

	for _, want := range []string{"job_1", "job_2", "job_3"} {
		got, err := q.Pop(ctx, time.Second)
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if got != want {
			t.Errorf("Pop = %s, want %s", got, want)
		}
	}
}

func TestPopTimeoutReturnsEmpty(t *testing.T) {
	fl := newFakeList()
	q := NewRedisQueue(fl, "q")

	got, err := q.Pop(context.Background(), 30*time.Second)
	if err != nil || got != "" {
		t.Fatalf("expected empty pop, got %q %v", got, err)
	}
	if fl.timeout != 30*time.Second {
		t.Errorf("timeout not forwarded: %s", fl.timeout)
	}
}

func TestPopPropagatesErrors(t *testing.T) {
	fl := newFakeList()
	fl.popErr = errors.New("connection refused")
	if _, err := NewRedisQueue(fl, "q").Pop(context.Background(), time.Second); err == nil {
		t.Fatal("expected error")
	}
}
