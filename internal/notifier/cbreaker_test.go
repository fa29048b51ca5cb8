package notifier

import (
	"testing"
	"time"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewMicroBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !b.TryAcquire() {
			t.Fatalf("attempt %d should pass while closed", i)
		}
		b.OnFailure()
	}

	if b.Ready() {
		t.Fatal("breaker should be open after 3 consecutive failures")
	}
	if b.TryAcquire() {
		t.Fatal("open breaker must not admit requests")
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b := NewMicroBreaker(1, 10*time.Millisecond)

	b.TryAcquire()
	b.OnFailure()
	if b.Ready() {
		t.Fatal("should be open")
	}

	time.Sleep(15 * time.Millisecond)

	if !b.TryAcquire() {
		t.Fatal("one probe should be admitted after open window")
	}
	if b.TryAcquire() {
		t.Fatal("only one probe may be in flight")
	}

	b.OnSuccess()
	if !b.TryAcquire() {
		t.Fatal("breaker should close after a successful probe")
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b := NewMicroBreaker(1, 10*time.Millisecond)

	b.TryAcquire()
	b.OnFailure()
	time.Sleep(15 * time.Millisecond)

	if !b.TryAcquire() {
		t.Fatal("probe should be admitted")
	}
	b.OnFailure()

	if b.TryAcquire() {
		t.Fatal("failed probe must reopen the breaker")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewMicroBreaker(3, time.Minute)

	b.OnFailure()
	b.OnFailure()
	b.OnSuccess()
	b.OnFailure()
	b.OnFailure()

	if !b.Ready() {
		t.Fatal("non-consecutive failures should not open the breaker")
	}
}
