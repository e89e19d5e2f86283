package notifier_test

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lanecast/lanecast/pkg/logger"
	"github.com/lanecast/lanecast/pkg/notifier"
)

type recorder struct {
	mu       sync.Mutex
	titles   []string
	messages []string
	err      error
}

func (r *recorder) send(title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	r.messages = append(r.messages, message)
	return r.err
}

func TestNotifier_RunComplete(t *testing.T) {
	rec := &recorder{}
	n := notifier.NewWithSender(notifier.Config{Enabled: true, SuccessSound: "Glass"}, nil, rec.send)

	n.NotifyRunComplete(notifier.RunSummary{
		Plan:       "roadmap",
		Trials:     10000,
		Failed:     3,
		Duration:   1500 * time.Millisecond,
		Completion: 42.3,
		Weight:     "85",
	})

	if len(rec.messages) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(rec.messages))
	}
	msg := rec.messages[0]
	for _, want := range []string{"roadmap", "day 42.3", "10,000 trials", "1.5s", "3 failed"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestNotifier_RunStartAndFailure(t *testing.T) {
	rec := &recorder{}
	n := notifier.NewWithSender(notifier.Config{Enabled: true}, nil, rec.send)

	n.NotifyRunStart("roadmap", 2500)
	n.NotifyRunFailure("roadmap", fmt.Errorf("dependency cycle: A -> B -> A"))
	n.NotifyPlanReloaded("roadmap", 12)

	if len(rec.titles) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(rec.titles))
	}
	if !strings.Contains(rec.messages[0], "2,500 trials") {
		t.Errorf("unexpected start message %q", rec.messages[0])
	}
	if rec.titles[1] != "Forecast Failed" || !strings.Contains(rec.messages[1], "cycle") {
		t.Errorf("unexpected failure notification %q: %q", rec.titles[1], rec.messages[1])
	}
	if !strings.Contains(rec.messages[2], "12 items") {
		t.Errorf("unexpected reload message %q", rec.messages[2])
	}
}

func TestNotifier_Disabled(t *testing.T) {
	rec := &recorder{}
	n := notifier.NewWithSender(notifier.Config{Enabled: false}, nil, rec.send)

	n.NotifyRunStart("p", 1)
	n.NotifyRunComplete(notifier.RunSummary{Plan: "p"})
	n.NotifyRunFailure("p", errors.New("x"))
	n.NotifyPlanReloaded("p", 1)

	if len(rec.titles) != 0 {
		t.Errorf("disabled notifier sent %d notifications", len(rec.titles))
	}
}

func TestNotifier_SendErrorFallsBackToLog(t *testing.T) {
	rec := &recorder{err: errors.New("no notification daemon")}
	log := logger.CreateLogger("", "info")
	n := notifier.NewWithSender(notifier.Config{Enabled: true}, log, rec.send)

	// must not panic or block
	n.NotifyRunFailure("p", errors.New("boom"))
	if len(rec.titles) != 1 {
		t.Errorf("expected one attempt, got %d", len(rec.titles))
	}
}

func TestNotifier_ConcurrentNotifications(t *testing.T) {
	rec := &recorder{}
	n := notifier.NewWithSender(notifier.Config{Enabled: true}, nil, rec.send)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n.NotifyRunStart(fmt.Sprintf("plan-%d", i), i)
		}(i)
	}
	wg.Wait()

	if len(rec.titles) != 10 {
		t.Errorf("expected 10 notifications, got %d", len(rec.titles))
	}
}

func BenchmarkNotifier_Complete(b *testing.B) {
	n := notifier.NewWithSender(notifier.Config{Enabled: true}, nil, func(string, string) error { return nil })
	s := notifier.RunSummary{Plan: "p", Trials: 10000, Duration: time.Second, Completion: 10, Weight: "average"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n.NotifyRunComplete(s)
	}
}
