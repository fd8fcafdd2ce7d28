package util

import (
	"testing"
	"time"
)

func TestSkipThrottler(t *testing.T) {
	t.Parallel()
	tt := NewSkipThrottler(time.Hour)
	if ok, skipped := tt.Take(); !ok || skipped != 0 {
		t.Fatalf("%v %d", ok, skipped)
	}
	for range 3 {
		if tt.Ok() {
			t.Fatalf("expected throttled")
		}
	}

	tt = NewSkipThrottler(0)
	for range 3 {
		if !tt.Ok() {
			t.Fatalf("expected ok")
		}
	}
}
