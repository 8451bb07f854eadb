// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package jobqueue

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/engram-foundation/engram/lib/clock"
)

func testQueue(t *testing.T) (*Queue, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC))
	queue, err := Open(filepath.Join(t.TempDir(), "jobs.log"), Options{
		Clock:       fake,
		MaxAttempts: 3,
		BaseBackoff: time.Second,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { queue.Close() })
	return queue, fake
}

func payload(t *testing.T, value any) json.RawMessage {
	t.Helper()
	encoded, err := json.Marshal(value)
	if err != nil {
		t.Fatal(err)
	}
	return encoded
}

func TestEnqueueClaimComplete(t *testing.T) {
	queue, _ := testQueue(t)

	job, err := queue.Enqueue(KindUpload, payload(t, map[string]string{"stream": "s"}), "")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.Kind != KindUpload || job.ID == "" {
		t.Fatalf("bad job: %+v", job)
	}

	claimed := queue.ClaimNext()
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("ClaimNext = %+v, want job %s", claimed, job.ID)
	}
	// Claimed jobs are not handed out twice.
	if second := queue.ClaimNext(); second != nil {
		t.Fatalf("ClaimNext returned claimed job again: %+v", second)
	}

	if err := queue.Complete(claimed.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if queue.Len() != 0 {
		t.Errorf("Len after complete = %d, want 0", queue.Len())
	}
}

func TestEnqueueDedup(t *testing.T) {
	queue, _ := testQueue(t)

	first, err := queue.Enqueue(KindUpload, payload(t, "a"), "dedup-key-1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := queue.Enqueue(KindUpload, payload(t, "a"), "dedup-key-1")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("dedup returned different jobs: %s vs %s", first.ID, second.ID)
	}
	if queue.Len() != 1 {
		t.Errorf("log holds %d jobs for one dedup key, want 1", queue.Len())
	}

	// A different key is separate work.
	third, err := queue.Enqueue(KindUpload, payload(t, "b"), "dedup-key-2")
	if err != nil {
		t.Fatal(err)
	}
	if third.ID == first.ID {
		t.Error("distinct dedup keys shared a job")
	}
}

func TestFailBackoffGrowth(t *testing.T) {
	queue, fake := testQueue(t)

	job, err := queue.Enqueue(KindAnchor, payload(t, "x"), "")
	if err != nil {
		t.Fatal(err)
	}

	var eligibleTimes []time.Time
	for attempt := 1; attempt <= 2; attempt++ {
		claimed := queue.ClaimNext()
		if claimed == nil {
			t.Fatalf("attempt %d: nothing claimable", attempt)
		}
		if err := queue.Fail(claimed.ID, errors.New("transient")); err != nil {
			t.Fatal(err)
		}

		failed := findJob(t, queue, job.ID)
		eligibleTimes = append(eligibleTimes, failed.NextEligibleAt)

		// Immediately after failure the job is rate-limited.
		if early := queue.ClaimNext(); early != nil {
			t.Fatalf("attempt %d: job claimable before backoff elapsed", attempt)
		}
		// Advance past the worst-case backoff (base·2^(n-1) + 25% jitter).
		fake.Advance(time.Duration(float64(time.Second<<(attempt-1)) * 1.3))
	}

	if !eligibleTimes[1].After(eligibleTimes[0]) {
		t.Errorf("backoff did not grow: %v then %v", eligibleTimes[0], eligibleTimes[1])
	}

	failed := findJob(t, queue, job.ID)
	if failed.LastError != "transient" {
		t.Errorf("LastError = %q, want transient", failed.LastError)
	}
	if failed.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", failed.Attempts)
	}
}

func TestExhaustedJobNeverClaimedAgain(t *testing.T) {
	queue, fake := testQueue(t)

	job, err := queue.Enqueue(KindUpload, payload(t, "x"), "")
	if err != nil {
		t.Fatal(err)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		fake.Advance(time.Minute) // past any backoff
		claimed := queue.ClaimNext()
		if claimed == nil {
			t.Fatalf("attempt %d: nothing claimable", attempt)
		}
		if err := queue.Fail(claimed.ID, errors.New("still broken")); err != nil {
			t.Fatal(err)
		}
	}

	fake.Advance(24 * time.Hour)
	if claimed := queue.ClaimNext(); claimed != nil {
		t.Fatalf("abandoned job was claimed: %+v", claimed)
	}

	abandoned := queue.Abandoned()
	if len(abandoned) != 1 || abandoned[0].ID != job.ID {
		t.Fatalf("Abandoned = %+v, want job %s", abandoned, job.ID)
	}
	if abandoned[0].LastError != "still broken" {
		t.Errorf("LastError = %q, want preserved", abandoned[0].LastError)
	}
}

func TestAbandonFastFail(t *testing.T) {
	queue, _ := testQueue(t)

	job, err := queue.Enqueue(KindUpload, payload(t, "x"), "")
	if err != nil {
		t.Fatal(err)
	}
	claimed := queue.ClaimNext()
	if claimed == nil {
		t.Fatal("nothing claimable")
	}
	if err := queue.Abandon(claimed.ID, errors.New("integrity violation")); err != nil {
		t.Fatal(err)
	}

	if claimedAgain := queue.ClaimNext(); claimedAgain != nil {
		t.Fatalf("abandoned job claimed: %+v", claimedAgain)
	}
	abandoned := queue.Abandoned()
	if len(abandoned) != 1 || abandoned[0].ID != job.ID {
		t.Fatalf("Abandoned = %+v", abandoned)
	}
}

func TestClaimOrderIsFIFO(t *testing.T) {
	queue, _ := testQueue(t)

	var enqueued []string
	for i := 0; i < 3; i++ {
		job, err := queue.Enqueue(KindUpload, payload(t, i), "")
		if err != nil {
			t.Fatal(err)
		}
		enqueued = append(enqueued, job.ID)
	}

	for index, wantID := range enqueued {
		claimed := queue.ClaimNext()
		if claimed == nil {
			t.Fatalf("claim %d: nothing claimable", index)
		}
		if claimed.ID != wantID {
			t.Errorf("claim %d = %s, want %s (FIFO)", index, claimed.ID, wantID)
		}
	}
}

func TestCrashRecoveryReplaysInOrder(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "jobs.log")

	queue, err := Open(path, Options{Clock: fake})
	if err != nil {
		t.Fatal(err)
	}
	var enqueued []string
	for i := 0; i < 3; i++ {
		job, err := queue.Enqueue(KindUpload, payload(t, i), "")
		if err != nil {
			t.Fatal(err)
		}
		enqueued = append(enqueued, job.ID)
	}
	// Claim one but never resolve it — the claim must not survive.
	if claimed := queue.ClaimNext(); claimed == nil {
		t.Fatal("nothing claimable before crash")
	}
	queue.Close()

	// Reload purely from the log.
	reopened, err := Open(path, Options{Clock: fake})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if reopened.Len() != 3 {
		t.Fatalf("replayed %d jobs, want 3", reopened.Len())
	}
	for index, wantID := range enqueued {
		claimed := reopened.ClaimNext()
		if claimed == nil {
			t.Fatalf("claim %d after replay: nothing claimable", index)
		}
		if claimed.ID != wantID {
			t.Errorf("claim %d after replay = %s, want %s", index, claimed.ID, wantID)
		}
	}
	if extra := reopened.ClaimNext(); extra != nil {
		t.Errorf("duplicate job after replay: %+v", extra)
	}
}

func TestDedupSurvivesReload(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "jobs.log")

	queue, err := Open(path, Options{Clock: fake})
	if err != nil {
		t.Fatal(err)
	}
	first, err := queue.Enqueue(KindUpload, payload(t, "x"), "key-1")
	if err != nil {
		t.Fatal(err)
	}
	queue.Close()

	reopened, err := Open(path, Options{Clock: fake})
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	second, err := reopened.Enqueue(KindUpload, payload(t, "x"), "key-1")
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("dedup lost across reload: %s vs %s", second.ID, first.ID)
	}
}

func TestKindWireNames(t *testing.T) {
	encoded, err := json.Marshal(KindUpload)
	if err != nil {
		t.Fatal(err)
	}
	if string(encoded) != `"upload"` {
		t.Errorf("KindUpload wire = %s", encoded)
	}

	var kind Kind
	if err := json.Unmarshal([]byte(`"anchor"`), &kind); err != nil {
		t.Fatal(err)
	}
	if kind != KindAnchor {
		t.Errorf("decoded kind = %v", kind)
	}
	if err := json.Unmarshal([]byte(`"compact"`), &kind); err == nil {
		t.Error("unknown kind decoded without error")
	}
}

func findJob(t *testing.T, queue *Queue, jobID string) *Job {
	t.Helper()
	for _, job := range queue.jobs {
		if job.ID == jobID {
			jobCopy := *job
			return &jobCopy
		}
	}
	t.Fatalf("job %s not found", jobID)
	return nil
}
