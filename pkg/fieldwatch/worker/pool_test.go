package worker

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingRunner struct {
	mu    sync.Mutex
	jobs  []Job
	block chan struct{} // when non-nil, Run waits on it
}

func (r *recordingRunner) Run(_ context.Context, job Job) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()
}

func (r *recordingRunner) seen() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}

func TestPoolRunsAllSubmittedJobs(t *testing.T) {
	runner := &recordingRunner{}
	pool := New(4, 0, runner, nil)
	pool.Start(context.Background())

	for _, code := range []string{"RT-001", "RT-002", "SRV-1"} {
		kind := "device"
		if code == "SRV-1" {
			kind = "server"
		}
		pool.Submit(Job{Kind: kind, Code: code})
	}
	pool.Stop()

	got := runner.seen()
	if len(got) != 3 {
		t.Fatalf("ran %d jobs, want 3", len(got))
	}
	codes := map[string]string{}
	for _, j := range got {
		codes[j.Code] = j.Kind
	}
	if codes["SRV-1"] != "server" || codes["RT-001"] != "device" {
		t.Errorf("job routing wrong: %v", codes)
	}
}

func TestPoolTrySubmitRejectsWhenFull(t *testing.T) {
	runner := &recordingRunner{block: make(chan struct{})}
	pool := New(1, 1, runner, nil)
	pool.Start(context.Background())

	// First job occupies the single worker, second fills the queue.
	pool.Submit(Job{Code: "a"})
	// Give the worker a moment to pick up the first job.
	deadline := time.Now().Add(time.Second)
	for pool.TrySubmit(Job{Code: "b"}) == false {
		if time.Now().After(deadline) {
			t.Fatal("queue slot never freed")
		}
		time.Sleep(time.Millisecond)
	}

	if pool.TrySubmit(Job{Code: "c"}) {
		t.Error("TrySubmit accepted a job on a full queue")
	}

	close(runner.block)
	pool.Stop()
}

func TestPoolStopDrainsQueue(t *testing.T) {
	runner := &recordingRunner{}
	pool := New(2, 16, runner, nil)
	pool.Start(context.Background())

	for i := 0; i < 10; i++ {
		pool.Submit(Job{Code: "dev"})
	}
	pool.Stop()

	if got := len(runner.seen()); got != 10 {
		t.Errorf("drained %d jobs, want 10", got)
	}
}

func TestPoolStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &recordingRunner{}
	pool := New(2, 4, runner, nil)
	pool.Start(ctx)

	cancel()

	done := make(chan struct{})
	go func() {
		pool.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not exit after cancel")
	}
}
