package conversation

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"bugtriage/pkg/report"
)

const (
	greeting       = "Thanks for reporting a bug! Let's gather some details.\nFirst, what's a *brief summary* of the issue?"
	resumePrefix   = "You already have a bug report in progress. "
	cancelledText  = "Okay, I've cancelled your bug report. Mention me any time to start a new one."
	nothingText    = "There's no bug report in progress, so there's nothing to cancel."
	completedIntro = "✅ Here's your bug report:\n\n"
	completedOutro = "\n\nI'll notify the dev team!"

	// ExpiredNotice is sent to reporters whose session timed out.
	ExpiredNotice = "Your bug report timed out after a period of inactivity, so I've discarded it. Mention me again to start over."
)

// Reply is the text the transport should post back, plus the state the
// session is left in.
type Reply struct {
	Text      string
	State     State
	Resumed   bool
	Completed bool
	Report    *report.BugReport
}

// Option customizes a Controller.
type Option func(*Controller)

func WithStore(store Store) Option {
	return func(c *Controller) {
		if store != nil {
			c.store = store
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator sets the source of report identifiers. A failed
// allocation leaves the session on its last question.
func WithIDGenerator(next func(time.Time) (string, error)) Option {
	return func(c *Controller) {
		if next != nil {
			c.nextID = next
		}
	}
}

// WithIdleTimeout sets how long a session may sit untouched before
// ExpireIdle removes it. Zero disables expiry.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		c.idleTimeout = timeout
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.log = logger
		}
	}
}

// WithTransport names the transport stamped on produced reports.
func WithTransport(name string) Option {
	return func(c *Controller) {
		c.transport = strings.TrimSpace(name)
	}
}

// Controller owns the session registry and advances sessions through the
// questionnaire. Callers serialize calls for the same Key.
type Controller struct {
	store       Store
	now         func() time.Time
	nextID      func(time.Time) (string, error)
	idleTimeout time.Duration
	transport   string
	log         *slog.Logger
}

func NewController(opts ...Option) *Controller {
	sequence := report.NewSequence()
	c := &Controller{
		store:  NewMemoryStore(),
		now:    time.Now,
		nextID: func(at time.Time) (string, error) { return sequence.Next(at), nil },
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "conversation.controller")

	return c
}

// Start opens a session for the key, or resumes the one already open.
func (c *Controller) Start(userID string, channelID string) Reply {
	key := Key{UserID: userID, ChannelID: channelID}

	if session, ok := c.store.Get(key); ok {
		session.UpdatedAt = c.now()
		c.store.Put(session)

		field, _ := session.State.Field()
		c.log.Debug("session resumed", "key", key.String(), "state", session.State)
		return Reply{Text: resumePrefix + field.Prompt, State: session.State, Resumed: true}
	}

	session := newSession(key, c.now())
	c.store.Put(session)
	c.log.Info("session started", "key", key.String())

	return Reply{Text: greeting, State: session.State}
}

// Submit records text as the answer to the session's current question.
func (c *Controller) Submit(userID string, channelID string, text string) (Reply, error) {
	key := Key{UserID: userID, ChannelID: channelID}

	session, ok := c.store.Get(key)
	if !ok {
		return Reply{}, ErrNoActiveSession
	}

	field, ok := session.State.Field()
	if !ok {
		c.store.Delete(key)
		return Reply{}, fmt.Errorf("session %s in unexpected state %q: %w", key, session.State, ErrNoActiveSession)
	}

	now := c.now()
	answer := normalizeAnswer(field, text)
	if answer == "" && field.Required {
		session.UpdatedAt = now
		c.store.Put(session)
		c.log.Debug("answer rejected", "key", key.String(), "field", field.Name)
		return Reply{Text: field.Reminder, State: session.State}, ErrEmptyRequiredAnswer
	}

	if answer != "" {
		session.Answers[field.Name] = answer
	}
	next, ok := session.State.Next()
	if !ok {
		return Reply{}, fmt.Errorf("no transition from state %q", session.State)
	}
	session.State = next
	session.UpdatedAt = now

	if !next.Terminal() {
		c.store.Put(session)
		nextField, _ := next.Field()
		return Reply{Text: nextField.Prompt, State: next}, nil
	}

	id, err := c.nextID(now)
	if err != nil {
		c.log.Error("report id allocation failed", "key", key.String(), "error", err)
		return Reply{}, fmt.Errorf("allocate report id: %w", err)
	}

	session.Completed = true
	c.store.Delete(key)

	bug := report.New(id, c.transport, userID, channelID, now, session.Answers)
	c.log.Info("session completed", "key", key.String(), "report_id", bug.ID, "priority", bug.Priority)

	return Reply{
		Text:      completedIntro + report.Format(bug) + completedOutro,
		State:     Completed,
		Completed: true,
		Report:    &bug,
	}, nil
}

// Cancel drops any session for the key. It is safe to call repeatedly.
func (c *Controller) Cancel(userID string, channelID string) Reply {
	key := Key{UserID: userID, ChannelID: channelID}
	if c.store.Delete(key) {
		c.log.Info("session cancelled", "key", key.String())
		return Reply{Text: cancelledText}
	}
	return Reply{Text: nothingText}
}

func (c *Controller) Active(userID string, channelID string) bool {
	_, ok := c.store.Get(Key{UserID: userID, ChannelID: channelID})
	return ok
}

// Session returns a copy of the session for the key.
func (c *Controller) Session(userID string, channelID string) (Session, bool) {
	return c.store.Get(Key{UserID: userID, ChannelID: channelID})
}

func (c *Controller) ActiveCount() int {
	return c.store.Len()
}

// ExpireIdle removes sessions untouched for longer than the idle timeout
// and returns their keys.
func (c *Controller) ExpireIdle(now time.Time) []Key {
	var expired []Key
	for _, key := range c.IdleKeys(now) {
		if c.Expire(key, now) {
			expired = append(expired, key)
		}
	}
	return expired
}

// IdleKeys lists sessions that looked idle at now. The list is a snapshot;
// Expire re-checks each key before removing it.
func (c *Controller) IdleKeys(now time.Time) []Key {
	if c.idleTimeout <= 0 {
		return nil
	}

	cutoff := now.Add(-c.idleTimeout)
	var keys []Key
	for _, session := range c.store.List() {
		if session.IdleSince(cutoff) {
			keys = append(keys, session.Key)
		}
	}
	return keys
}

// Expire removes the session for key if it is still idle at now. A session
// answered after IdleKeys ran is left alone.
func (c *Controller) Expire(key Key, now time.Time) bool {
	if c.idleTimeout <= 0 {
		return false
	}

	cutoff := now.Add(-c.idleTimeout)
	var last Session
	removed := c.store.DeleteIf(key, func(session Session) bool {
		last = session
		return session.IdleSince(cutoff)
	})
	if removed {
		c.log.Info("session expired", "key", key.String(), "state", last.State, "idle_for", now.Sub(last.UpdatedAt).Round(time.Second).String())
	}
	return removed
}
