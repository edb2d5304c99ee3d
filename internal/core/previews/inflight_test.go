package previews

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInflight_CollapsesConcurrentCalls(t *testing.T) {
	r := newInflightRegistry(time.Second)
	release := make(chan struct{})
	var calls atomic.Int32

	fn := func(ctx context.Context, stage func(Status)) (*ArtifactRef, error) {
		calls.Add(1)
		stage(StatusGenerating)
		<-release
		return &ArtifactRef{PreviewURL: "https://cdn.test/a.png"}, nil
	}

	const callers = 5
	var wg sync.WaitGroup
	var joins atomic.Int32
	results := make([]*ArtifactRef, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref, joined, err := r.Do(context.Background(), "idem:a", fn, nil)
			assert.NoError(t, err)
			if joined {
				joins.Add(1)
			}
			results[i] = ref
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// Let every caller attach before the shared call returns
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(callers-1), joins.Load())
	for _, ref := range results {
		require.NotNil(t, ref)
		assert.Equal(t, "https://cdn.test/a.png", ref.PreviewURL)
	}
	assert.Equal(t, 0, r.Len())
}

func TestInflight_EntryClearedAfterFailure(t *testing.T) {
	r := newInflightRegistry(time.Second)
	boom := errors.New("boom")

	_, _, err := r.Do(context.Background(), "idem:b", func(context.Context, func(Status)) (*ArtifactRef, error) {
		return nil, boom
	}, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, r.Len())

	// A retry starts a fresh call instead of replaying the failure
	ref, joined, err := r.Do(context.Background(), "idem:b", func(context.Context, func(Status)) (*ArtifactRef, error) {
		return &ArtifactRef{PreviewURL: "ok"}, nil
	}, nil)
	require.NoError(t, err)
	assert.False(t, joined)
	assert.Equal(t, "ok", ref.PreviewURL)
}

func TestInflight_WaiterAbandonsWithoutCancellingCall(t *testing.T) {
	r := newInflightRegistry(time.Second)
	release := make(chan struct{})
	finished := make(chan error, 1)

	fn := func(ctx context.Context, _ func(Status)) (*ArtifactRef, error) {
		select {
		case <-release:
			finished <- nil
			return &ArtifactRef{PreviewURL: "done"}, nil
		case <-ctx.Done():
			finished <- ctx.Err()
			return nil, ctx.Err()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, _, err := r.Do(ctx, "idem:c", fn, nil)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	select {
	case err := <-finished:
		assert.NoError(t, err, "shared call must outlive its first caller")
	case <-time.After(time.Second):
		t.Fatal("shared call never finished")
	}
}

func TestInflight_Timeout(t *testing.T) {
	r := newInflightRegistry(30 * time.Millisecond)

	_, _, err := r.Do(context.Background(), "idem:d", func(ctx context.Context, _ func(Status)) (*ArtifactRef, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInflight_JoinerSeesCurrentStage(t *testing.T) {
	r := newInflightRegistry(time.Second)
	staged := make(chan struct{})
	release := make(chan struct{})

	fn := func(ctx context.Context, stage func(Status)) (*ArtifactRef, error) {
		stage(StatusPolling)
		close(staged)
		<-release
		stage(StatusWatermarking)
		return &ArtifactRef{}, nil
	}

	go func() {
		_, _, _ = r.Do(context.Background(), "idem:e", fn, nil)
	}()
	<-staged

	var mu sync.Mutex
	var seen []Status
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, joined, err := r.Do(context.Background(), "idem:e", fn, func(s Status) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		})
		assert.True(t, joined)
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, 5*time.Millisecond)
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusPolling, StatusWatermarking}, seen)
}
