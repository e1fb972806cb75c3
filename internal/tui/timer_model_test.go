package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/balkashynov/worklog/internal/models"
	"github.com/balkashynov/worklog/internal/store"
	"github.com/balkashynov/worklog/internal/tracker"
)

type timerFixture struct {
	now     time.Time
	manager *tracker.Manager
	model   TimerModel
}

func newTimerFixture(t *testing.T) *timerFixture {
	t.Helper()
	f := &timerFixture{now: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	f.manager = tracker.New(store.NewMemory(), nil, tracker.WithClock(clock))
	s, err := f.manager.Start(context.Background(), "user-1", models.Attributes{Activity: "write tests", TaskRef: "APP-7"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	f.model = NewTimerModel(s, f.manager, clock)
	return f
}

// send feeds msg to the model and returns the resulting command unrun.
func (f *timerFixture) send(t *testing.T, msg tea.Msg) tea.Cmd {
	t.Helper()
	next, cmd := f.model.Update(msg)
	f.model = next.(TimerModel)
	return cmd
}

// exec runs a tracker command and feeds its result back into the model.
func (f *timerFixture) exec(t *testing.T, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	msg, ok := cmd().(sessionMsg)
	if !ok {
		t.Fatalf("expected sessionMsg")
	}
	f.send(t, msg)
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestTimerPauseResume(t *testing.T) {
	f := newTimerFixture(t)

	f.exec(t, f.send(t, keyMsg("p")))
	if f.model.Session().Status != models.StatusPaused {
		t.Fatalf("status after p = %s", f.model.Session().Status)
	}
	f.exec(t, f.send(t, keyMsg("p")))
	if f.model.Session().Status != models.StatusActive {
		t.Fatalf("status after second p = %s", f.model.Session().Status)
	}
}

func TestTimerStop(t *testing.T) {
	f := newTimerFixture(t)
	f.now = f.now.Add(16 * time.Minute)

	f.exec(t, f.send(t, keyMsg("s")))
	s := f.model.Session()
	if !f.model.Finished() || s.Status != models.StatusCompleted {
		t.Fatalf("expected completed session, got %s", s.Status)
	}
	if s.BillableDurationMinutes != 30 {
		t.Fatalf("billable = %d", s.BillableDurationMinutes)
	}
}

func TestTimerInterruptWithReason(t *testing.T) {
	f := newTimerFixture(t)

	f.send(t, keyMsg("i"))
	for _, r := range "meeting" {
		f.send(t, keyMsg(string(r)))
	}
	f.exec(t, f.send(t, keyMsg("enter")))

	s := f.model.Session()
	if s.Status != models.StatusInterrupted || s.InterruptReason != "meeting" {
		t.Fatalf("session = %+v", s)
	}
}

func TestTimerInterruptCancelled(t *testing.T) {
	f := newTimerFixture(t)

	f.send(t, keyMsg("i"))
	f.send(t, keyMsg("esc"))
	if f.model.askingReason {
		t.Fatal("expected prompt closed")
	}
	if f.model.Session().Status != models.StatusActive {
		t.Fatalf("status = %s", f.model.Session().Status)
	}
	if f.model.leaving {
		t.Fatal("esc in the prompt should not leave the timer")
	}
}

func TestTimerLeaveKeepsSessionRunning(t *testing.T) {
	f := newTimerFixture(t)
	f.send(t, keyMsg("q"))

	if !f.model.leaving || f.model.Finished() {
		t.Fatal("expected leaving without finishing")
	}
	got, err := f.manager.Get(context.Background(), f.model.Session().ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusActive {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestTimerHeartbeat(t *testing.T) {
	f := newTimerFixture(t)
	f.now = f.now.Add(HeartbeatInterval)

	next, cmd := f.model.Update(heartbeatTickMsg{})
	f.model = next.(TimerModel)
	if cmd == nil {
		t.Fatal("expected heartbeat command")
	}
	batch, ok := cmd().(tea.BatchMsg)
	if !ok || len(batch) != 2 {
		t.Fatal("expected the next tick batched with the heartbeat call")
	}
	// batch[0] is the 30s re-arm tick; only the call is run here
	res, ok := batch[1]().(heartbeatResultMsg)
	if !ok {
		t.Fatal("no heartbeat issued")
	}
	if res.err != nil {
		t.Fatalf("heartbeat: %v", res.err)
	}

	got, err := f.manager.Get(context.Background(), f.model.Session().ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.UpdatedAt.Equal(f.now) {
		t.Fatalf("updated at = %v, want %v", got.UpdatedAt, f.now)
	}
}

func TestTimerShowsError(t *testing.T) {
	f := newTimerFixture(t)
	next, _ := f.model.Update(sessionMsg{err: errors.New("store down")})
	f.model = next.(TimerModel)
	next, _ = f.model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	f.model = next.(TimerModel)

	view := f.model.View()
	if !strings.Contains(view, "store down") {
		t.Fatal("expected error in view")
	}
	if !strings.Contains(view, "write tests") || !strings.Contains(view, "APP-7") {
		t.Fatal("expected session details in view")
	}
}

func TestTimerHeartbeatKeepsEarlierError(t *testing.T) {
	f := newTimerFixture(t)
	f.send(t, sessionMsg{err: errors.New("pause failed")})

	f.send(t, heartbeatResultMsg{})
	if f.model.Err() == nil || f.model.Err().Error() != "pause failed" {
		t.Fatalf("successful heartbeat cleared the error, got %v", f.model.Err())
	}

	f.send(t, heartbeatResultMsg{err: errors.New("heartbeat failed")})
	if f.model.Err() == nil || f.model.Err().Error() != "heartbeat failed" {
		t.Fatalf("expected heartbeat error, got %v", f.model.Err())
	}
}

func TestClockText(t *testing.T) {
	tests := map[time.Duration]string{
		0:                "00:00",
		75 * time.Second: "01:15",
		time.Hour + 2*time.Minute + 3*time.Second: "01:02:03",
		-time.Second: "00:00",
	}
	for d, want := range tests {
		if got := clockText(d); got != want {
			t.Errorf("clockText(%v) = %q, want %q", d, got, want)
		}
	}
}
