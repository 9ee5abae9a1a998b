package conversation

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"bugtriage/pkg/report"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestController(t *testing.T, opts ...Option) (*Controller, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	base := []Option{
		WithClock(clock.Now),
		WithIDGenerator(func(time.Time) (string, error) { return "BUG-2026-001", nil }),
		WithTransport("slack"),
	}
	return NewController(append(base, opts...)...), clock
}

func submitAll(t *testing.T, c *Controller, user string, channel string, answers ...string) Reply {
	t.Helper()

	var reply Reply
	for i, answer := range answers {
		var err error
		reply, err = c.Submit(user, channel, answer)
		if err != nil {
			t.Fatalf("Submit #%d (%q) error: %v", i, answer, err)
		}
	}
	return reply
}

func TestFullConversationProducesReport(t *testing.T) {
	c, _ := newTestController(t)

	start := c.Start("U1", "C1")
	if start.State != AwaitingSummary {
		t.Fatalf("start state = %q, want %q", start.State, AwaitingSummary)
	}
	if !strings.Contains(start.Text, "brief summary") {
		t.Fatalf("greeting = %q, want summary prompt", start.Text)
	}

	reply := submitAll(t, c, "U1", "C1",
		"Login button broken",
		"/login",
		"1. Open /login 2. Click Sign In 3. Nothing happens",
		"",
	)

	if !reply.Completed || reply.State != Completed {
		t.Fatalf("reply = %+v, want completed", reply)
	}
	if reply.Report == nil {
		t.Fatal("expected completed reply to carry a report")
	}

	bug := reply.Report
	if bug.ID != "BUG-2026-001" || bug.UserID != "U1" || bug.ChannelID != "C1" || bug.Channel != "slack" {
		t.Fatalf("report identity = %+v", bug)
	}
	if bug.Summary() != "Login button broken" || bug.Pages() != "/login" {
		t.Fatalf("report answers = %v", bug.Answers)
	}
	if _, ok := bug.Answers[report.FieldComponents]; ok {
		t.Fatalf("expected skipped components to be absent: %v", bug.Answers)
	}
	if strings.Contains(reply.Text, "*Components:*") {
		t.Fatalf("expected formatted report to omit components: %q", reply.Text)
	}
	for _, label := range []string{"*Summary:*", "*Affected Pages:*", "*Steps to Reproduce:*"} {
		if !strings.Contains(reply.Text, label) {
			t.Fatalf("formatted report missing %s: %q", label, reply.Text)
		}
	}
	if c.Active("U1", "C1") {
		t.Fatal("expected session to be removed after completion")
	}
}

func TestPromptsFollowFieldOrder(t *testing.T) {
	c, _ := newTestController(t)
	c.Start("U1", "C1")

	defs := Fields()
	for i := 0; i < len(defs)-1; i++ {
		reply, err := c.Submit("U1", "C1", "answer")
		if err != nil {
			t.Fatalf("Submit error: %v", err)
		}
		if reply.Text != defs[i+1].Prompt {
			t.Fatalf("prompt after %s = %q, want %q", defs[i].Name, reply.Text, defs[i+1].Prompt)
		}
	}
}

func TestEmptyRequiredAnswerDoesNotAdvance(t *testing.T) {
	c, clock := newTestController(t)
	c.Start("U1", "C1")

	for _, input := range []string{"", "   ", "\n\t"} {
		clock.Advance(time.Minute)
		reply, err := c.Submit("U1", "C1", input)
		if !errors.Is(err, ErrEmptyRequiredAnswer) {
			t.Fatalf("Submit(%q) error = %v, want ErrEmptyRequiredAnswer", input, err)
		}
		if reply.State != AwaitingSummary {
			t.Fatalf("state = %q, want %q", reply.State, AwaitingSummary)
		}
		if !strings.Contains(reply.Text, "brief summary") {
			t.Fatalf("reminder = %q, want summary reminder", reply.Text)
		}
	}

	session, ok := c.Session("U1", "C1")
	if !ok {
		t.Fatal("expected session to remain active")
	}
	if session.State != AwaitingSummary || len(session.Answers) != 0 {
		t.Fatalf("session = %+v, want untouched", session)
	}
}

func TestOptionalSkipWords(t *testing.T) {
	for _, skip := range []string{"", "none", "N/A", " skip "} {
		c, _ := newTestController(t)
		c.Start("U1", "C1")

		reply := submitAll(t, c, "U1", "C1", "summary", "pages", "steps", skip)
		if reply.Report.Components() != "" {
			t.Fatalf("components for %q = %q, want empty", skip, reply.Report.Components())
		}
	}
}

func TestOptionalAnswerIsKept(t *testing.T) {
	c, _ := newTestController(t)
	c.Start("U1", "C1")

	reply := submitAll(t, c, "U1", "C1", "summary", "pages", "steps", "  hero-banner  ")
	if reply.Report.Components() != "hero-banner" {
		t.Fatalf("components = %q, want %q", reply.Report.Components(), "hero-banner")
	}
	if !strings.Contains(reply.Text, "*Components:*\nhero-banner") {
		t.Fatalf("expected components section: %q", reply.Text)
	}
}

func TestSubmitWithoutSession(t *testing.T) {
	c, _ := newTestController(t)

	if _, err := c.Submit("U1", "C1", "hello"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Submit error = %v, want ErrNoActiveSession", err)
	}
}

func TestStartResumesActiveSession(t *testing.T) {
	c, _ := newTestController(t)
	c.Start("U1", "C1")
	submitAll(t, c, "U1", "C1", "Search is slow")

	reply := c.Start("U1", "C1")
	if !reply.Resumed {
		t.Fatal("expected resume")
	}
	if reply.State != AwaitingPages {
		t.Fatalf("state = %q, want %q", reply.State, AwaitingPages)
	}
	if !strings.HasSuffix(reply.Text, "Which *page(s)* are affected? (Please paste full URLs)") {
		t.Fatalf("resume prompt = %q", reply.Text)
	}

	session, _ := c.Session("U1", "C1")
	if session.Answers[report.FieldSummary] != "Search is slow" {
		t.Fatalf("answers lost on resume: %v", session.Answers)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	c, _ := newTestController(t)
	c.Start("U1", "C1")

	first := c.Cancel("U1", "C1")
	second := c.Cancel("U1", "C1")

	if first.Text == "" || second.Text == "" {
		t.Fatal("expected acknowledgment on every cancel")
	}
	if c.Active("U1", "C1") {
		t.Fatal("expected no session after cancel")
	}
}

func TestCancelThenStartIsFresh(t *testing.T) {
	c, _ := newTestController(t)
	c.Start("U1", "C1")
	submitAll(t, c, "U1", "C1", "old summary", "old pages")
	c.Cancel("U1", "C1")

	c.Start("U1", "C1")
	reply := submitAll(t, c, "U1", "C1", "new summary", "new pages", "new steps", "")

	if reply.Report.Summary() != "new summary" || reply.Report.Pages() != "new pages" {
		t.Fatalf("answers leaked from cancelled session: %v", reply.Report.Answers)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	c, _ := newTestController(t)
	c.Start("U1", "C1")
	c.Start("U2", "C1")
	c.Start("U1", "C2")

	submitAll(t, c, "U1", "C1", "first")
	submitAll(t, c, "U2", "C1", "second", "pages")

	a, _ := c.Session("U1", "C1")
	b, _ := c.Session("U2", "C1")
	other, _ := c.Session("U1", "C2")

	if a.State != AwaitingPages || a.Answers[report.FieldSummary] != "first" {
		t.Fatalf("session U1/C1 = %+v", a)
	}
	if b.State != AwaitingSteps || b.Answers[report.FieldSummary] != "second" {
		t.Fatalf("session U2/C1 = %+v", b)
	}
	if other.State != AwaitingSummary || len(other.Answers) != 0 {
		t.Fatalf("session U1/C2 = %+v", other)
	}
	if c.ActiveCount() != 3 {
		t.Fatalf("ActiveCount = %d, want 3", c.ActiveCount())
	}
}

func TestControllersDoNotShareState(t *testing.T) {
	a, _ := newTestController(t)
	b, _ := newTestController(t)
	a.Start("U1", "C1")

	if b.Active("U1", "C1") {
		t.Fatal("expected independent controllers to have independent stores")
	}
}

func TestExpireIdle(t *testing.T) {
	c, clock := newTestController(t, WithIdleTimeout(30*time.Minute))
	c.Start("U1", "C1")
	clock.Advance(20 * time.Minute)
	c.Start("U2", "C1")
	clock.Advance(15 * time.Minute)

	expired := c.ExpireIdle(clock.Now())
	if len(expired) != 1 || expired[0] != (Key{UserID: "U1", ChannelID: "C1"}) {
		t.Fatalf("expired = %v, want only U1/C1", expired)
	}
	if !c.Active("U2", "C1") {
		t.Fatal("expected recent session to survive")
	}
}

func TestExpireIdleDisabled(t *testing.T) {
	c, clock := newTestController(t)
	c.Start("U1", "C1")
	clock.Advance(24 * time.Hour)

	if expired := c.ExpireIdle(clock.Now()); len(expired) != 0 {
		t.Fatalf("expired = %v, want none without idle timeout", expired)
	}
}

func TestActivityRefreshesIdleClock(t *testing.T) {
	c, clock := newTestController(t, WithIdleTimeout(10*time.Minute))
	c.Start("U1", "C1")
	clock.Advance(8 * time.Minute)
	submitAll(t, c, "U1", "C1", "summary")
	clock.Advance(8 * time.Minute)

	if expired := c.ExpireIdle(clock.Now()); len(expired) != 0 {
		t.Fatalf("expired = %v, want none after recent answer", expired)
	}
}

// answeringStore runs onList after taking its snapshot, standing in for a
// reporter whose answer lands while a sweep is in flight.
type answeringStore struct {
	*MemoryStore
	onList func()
}

func (s *answeringStore) List() []Session {
	sessions := s.MemoryStore.List()
	if s.onList != nil {
		hook := s.onList
		s.onList = nil
		hook()
	}
	return sessions
}

func TestExpireIdleKeepsSessionAnsweredDuringSweep(t *testing.T) {
	store := &answeringStore{MemoryStore: NewMemoryStore()}
	c, clock := newTestController(t, WithStore(store), WithIdleTimeout(30*time.Minute))
	c.Start("U1", "C1")
	clock.Advance(31 * time.Minute)

	store.onList = func() {
		if _, err := c.Submit("U1", "C1", "Login button broken"); err != nil {
			t.Errorf("Submit during sweep: %v", err)
		}
	}

	if expired := c.ExpireIdle(clock.Now()); len(expired) != 0 {
		t.Fatalf("expired = %v, want none for a session answered mid-sweep", expired)
	}
	session, ok := c.Session("U1", "C1")
	if !ok {
		t.Fatal("session answered mid-sweep was discarded")
	}
	if session.State != AwaitingPages || session.Answers["summary"] != "Login button broken" {
		t.Fatalf("session = %+v, want summary kept and pages next", session)
	}
}

func TestExpireRechecksIdleness(t *testing.T) {
	c, clock := newTestController(t, WithIdleTimeout(10*time.Minute))
	c.Start("U1", "C1")
	clock.Advance(11 * time.Minute)

	keys := c.IdleKeys(clock.Now())
	if len(keys) != 1 {
		t.Fatalf("IdleKeys = %v, want one", keys)
	}

	submitAll(t, c, "U1", "C1", "summary")
	if c.Expire(keys[0], clock.Now()) {
		t.Fatal("Expire removed a session touched after IdleKeys")
	}

	clock.Advance(11 * time.Minute)
	if !c.Expire(keys[0], clock.Now()) {
		t.Fatal("Expire kept a session idle past the timeout")
	}
	if c.Expire(keys[0], clock.Now()) {
		t.Fatal("Expire reported a second removal")
	}
}

func TestFailedIDAllocationKeepsSession(t *testing.T) {
	failing := true
	c, _ := newTestController(t, WithIDGenerator(func(time.Time) (string, error) {
		if failing {
			return "", errors.New("database is locked")
		}
		return "BUG-2026-007", nil
	}))
	c.Start("U1", "C1")
	submitAll(t, c, "U1", "C1", "Search is slow", "https://example.com/search", "type a query")

	if _, err := c.Submit("U1", "C1", "search-api"); err == nil {
		t.Fatal("expected allocation error")
	}
	session, ok := c.Session("U1", "C1")
	if !ok || session.State != AwaitingComponents {
		t.Fatalf("session = %+v (ok=%v), want it kept on the components question", session, ok)
	}

	failing = false
	reply, err := c.Submit("U1", "C1", "search-api")
	if err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if !reply.Completed || reply.Report.ID != "BUG-2026-007" || reply.Report.Components() != "search-api" {
		t.Fatalf("retry reply = %+v", reply)
	}
}
