package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/rehearsal/pkg/provider/classifier"
	classifiermock "github.com/MrWong99/rehearsal/pkg/provider/classifier/mock"
	"github.com/MrWong99/rehearsal/pkg/provider/classifier/remote"
	"github.com/MrWong99/rehearsal/pkg/types"
)

func TestClassifierFallback_Failover(t *testing.T) {
	primary := &classifiermock.Classifier{Err: errors.New("model server down")}
	secondary := &classifiermock.Classifier{Default: classifier.Result{Label: classifier.LabelRelaxed}}

	fb := NewClassifierFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	fb.AddFallback("secondary", secondary)

	for i := range 3 {
		res, err := fb.Classify(context.Background(), types.Frame{})
		if err != nil {
			t.Fatalf("Classify %d: %v", i, err)
		}
		if res.Label != classifier.LabelRelaxed {
			t.Errorf("label = %q", res.Label)
		}
	}
	// The third frame goes straight to the secondary.
	if primary.CallCount() != 2 {
		t.Errorf("primary calls = %d, want 2", primary.CallCount())
	}
	if s := fb.Status(); s[0].State != StateOpen {
		t.Errorf("primary state = %v, want open", s[0].State)
	}
	if !fb.Healthy() {
		t.Error("Healthy() = false")
	}
}

func TestClassifierFallback_NoResultIsAnAnswer(t *testing.T) {
	primary := &classifiermock.Classifier{Err: fmt.Errorf("remote: %w", classifier.ErrNoResult)}
	secondary := &classifiermock.Classifier{Default: classifier.Result{Label: classifier.LabelAnxious}}

	fb := NewClassifierFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})
	fb.AddFallback("secondary", secondary)

	for range 3 {
		_, err := fb.Classify(context.Background(), types.Frame{})
		if !errors.Is(err, classifier.ErrNoResult) {
			t.Fatalf("err = %v, want ErrNoResult", err)
		}
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary calls = %d, want 0", secondary.CallCount())
	}
	if s := fb.Status(); s[0].State != StateClosed {
		t.Errorf("primary state = %v, want closed", s[0].State)
	}
}

func TestClassifierFallback_BackendTimeoutFailsOver(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	slow, err := remote.New(srv.URL, remote.WithTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("remote.New: %v", err)
	}
	backup := &classifiermock.Classifier{Default: classifier.Result{Label: classifier.LabelRelaxed}}

	fb := NewClassifierFallback(slow, "remote", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	fb.AddFallback("backup", backup)

	for i := range 3 {
		res, err := fb.Classify(context.Background(), types.Frame{})
		if err != nil {
			t.Fatalf("Classify %d: %v", i, err)
		}
		if res.Label != classifier.LabelRelaxed {
			t.Errorf("label = %q", res.Label)
		}
	}
	if backup.CallCount() != 3 {
		t.Errorf("backup calls = %d, want 3", backup.CallCount())
	}
	if s := fb.Status(); s[0].State != StateOpen {
		t.Errorf("remote state = %v, want open", s[0].State)
	}
}

func TestClassifierFallback_CallerCancelDoesNotFailOver(t *testing.T) {
	block := make(chan struct{})
	primary := &classifiermock.Classifier{Block: block}
	backup := &classifiermock.Classifier{Default: classifier.Result{Label: classifier.LabelRelaxed}}

	fb := NewClassifierFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})
	fb.AddFallback("backup", backup)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := fb.Classify(ctx, types.Frame{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if backup.CallCount() != 0 {
		t.Errorf("backup calls = %d, want 0", backup.CallCount())
	}
	if s := fb.Status(); s[0].State != StateClosed {
		t.Errorf("primary state = %v, want closed", s[0].State)
	}
}
