package monitoring

import (
	"errors"
	"testing"
	"time"
)

type recordMonitor struct {
	errs   []error
	panics []any
	tags   []map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}

func (r *recordMonitor) CapturePanic(v any, tags map[string]string) {
	r.panics = append(r.panics, v)
	r.tags = append(r.tags, tags)
}

func (r *recordMonitor) Flush(time.Duration) {}

func TestCaptureForwardsToMonitor(t *testing.T) {
	rec := &recordMonitor{}
	Init(rec)
	defer Init(nil)

	CaptureException(errors.New("boom"), map[string]string{"component": "test"})
	CaptureException(nil, nil)
	if len(rec.errs) != 1 || rec.tags[0]["component"] != "test" {
		t.Fatalf("unexpected captures: %v %v", rec.errs, rec.tags)
	}
}

func TestCapturePanicReturnsError(t *testing.T) {
	rec := &recordMonitor{}
	Init(rec)
	defer Init(nil)

	sentinel := errors.New("bad state")
	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = CapturePanic(p, map[string]string{"worker": "1"})
			}
		}()
		panic(sentinel)
	}()
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if len(rec.panics) != 1 {
		t.Fatalf("expected one panic captured, got %d", len(rec.panics))
	}
	if err := CapturePanic("text", nil); err == nil || err.Error() != "panic: text" {
		t.Fatalf("unexpected error %v", err)
	}
}
