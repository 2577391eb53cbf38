package practice

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCaptureWindow_FinalTranscriptLatches(t *testing.T) {
	w := newWindow(1, 0, time.Now())

	w.UpdateTranscript("hel", false)
	w.UpdateTranscript("hello", false)
	if !w.UpdateTranscript("hello world", true) {
		t.Fatal("final update rejected")
	}
	if w.UpdateTranscript("hello wor", false) {
		t.Error("partial after final should be ignored")
	}
	if w.UpdateTranscript("something else", true) {
		t.Error("second final should be ignored")
	}
	if w.FailTranscriber(errors.New("late")) {
		t.Error("error after final should be ignored")
	}

	text, final := w.Transcript()
	if text != "hello world" || !final {
		t.Errorf("Transcript() = %q/%v", text, final)
	}
}

func TestCaptureWindow_CloseFreezes(t *testing.T) {
	start := time.Now()
	w := newWindow(7, 2, start)
	w.SubmitFrame(2)
	w.SubmitFrame(4)
	w.UpdateTranscript("partial", false)
	w.FailTranscriber(errors.New("stream reset"))

	res := w.close(start.Add(3*time.Second), false)
	if res.Mean != 3 || res.Frames != 2 || res.Transcript != "partial" || res.Final || res.TranscriberErr == nil {
		t.Errorf("result = %+v", res)
	}
	if res.Duration != 3*time.Second {
		t.Errorf("duration = %v", res.Duration)
	}
	if !w.closed {
		t.Error("window not marked closed")
	}

	if w.SubmitFrame(5) || w.UpdateTranscript("x", true) {
		t.Error("closed window accepted a write")
	}
	if again := w.close(start.Add(time.Hour), true); again != res {
		t.Errorf("second close = %+v, want %+v", again, res)
	}
}

func TestCaptureWindow_EmptyCloseUsesMinimum(t *testing.T) {
	w := newWindow(1, 0, time.Now())
	if res := w.close(time.Now(), true); res.Mean != 1.0 || res.Frames != 0 || !res.Cancelled {
		t.Errorf("result = %+v", res)
	}
}

func TestCaptureWindow_ConcurrentProducers(t *testing.T) {
	w := newWindow(1, 0, time.Now())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 200 {
			w.SubmitFrame(4)
		}
	}()
	go func() {
		defer wg.Done()
		for i := range 200 {
			w.UpdateTranscript("word", i == 199)
		}
	}()
	wg.Wait()

	res := w.close(time.Now(), false)
	if res.Frames != 200 || res.Mean != 4 || !res.Final {
		t.Errorf("result = %+v", res)
	}
}
