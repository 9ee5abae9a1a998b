package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	core "charm.land/fantasy"

	"bugtriage/pkg/bus"
	"bugtriage/pkg/channel"
	"bugtriage/pkg/config"
	"bugtriage/pkg/conversation"
	"bugtriage/pkg/investigate"
	"bugtriage/pkg/provider"
	"bugtriage/pkg/repo"
	"bugtriage/pkg/report"
	"bugtriage/pkg/storage"
)

const (
	storageTimeout         = 5 * time.Second
	postTimeout            = 10 * time.Second
	providerHealthInterval = 60 * time.Second
)

// Service runs the chat transports, routes their messages through the
// conversation controllers, and serves status endpoints.
type Service struct {
	cfg          *config.Config
	log          *slog.Logger
	bus          *bus.MessageBus
	store        *storage.Store
	investigator *investigate.Investigator
	provider     provider.Client
	router       *sessionRouter
	channels     []channel.Adapter
	posters      map[string]channel.Poster
	now          func() time.Time

	tasks sync.WaitGroup

	mu               sync.RWMutex
	runCtx           context.Context
	startedAt        time.Time
	providerLastOKAt time.Time
	providerLastErr  string
	storageLastErr   string
	channelStates    map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status           string                  `json:"status"`
	UptimeSeconds    int64                   `json:"uptime_seconds"`
	ActiveSessions   int                     `json:"active_sessions"`
	Investigation    string                  `json:"investigation"`
	Sessions         map[string]int          `json:"sessions,omitempty"`
	StorageError     string                  `json:"storage_error,omitempty"`
	ProviderLastOKAt string                  `json:"provider_last_ok_at,omitempty"`
	ProviderLastErr  string                  `json:"provider_last_error,omitempty"`
	Channels         map[string]channelState `json:"channels"`
}

// NewService opens the report database and builds the investigation stack
// described by cfg.
func NewService(ctx context.Context, cfg *config.Config, adapters []channel.Adapter, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if log == nil {
		log = slog.Default()
	}

	store, err := storage.Open(ctx, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	var client provider.Client
	if cfg.Investigation.Enabled {
		client, err = provider.New(cfg)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("initialize provider: %w", err)
		}
		if toolUser, ok := client.(interface{ SetTools(...core.AgentTool) }); ok {
			toolUser.SetTools(investigate.Tools(store)...)
		}
	}

	commits, err := repo.NewGitHubCommits(cfg.GitHub, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	opts := []investigate.Option{
		investigate.WithCommitSource(commits),
		investigate.WithModel(cfg.Investigation.Model),
		investigate.WithTimeout(time.Duration(cfg.Investigation.TimeoutSeconds) * time.Second),
		investigate.WithAnalysisDays(cfg.Investigation.AnalysisDays),
		investigate.WithLogger(log),
	}
	if client != nil {
		opts = append(opts, investigate.WithClient(client))
	}

	return newService(cfg, adapters, store, investigate.New(opts...), client, log), nil
}

func newService(cfg *config.Config, adapters []channel.Adapter, store *storage.Store, investigator *investigate.Investigator, client provider.Client, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		bus:           bus.NewMessageBus(),
		store:         store,
		investigator:  investigator,
		provider:      client,
		channels:      adapters,
		posters:       make(map[string]channel.Poster),
		now:           time.Now,
		channelStates: make(map[string]channelState, len(adapters)),
	}

	for _, adapter := range adapters {
		s.channelStates[adapter.Name()] = channelState{}
		if poster, ok := adapter.(channel.Poster); ok {
			s.posters[adapter.Name()] = poster
		}
	}

	idleTimeout := time.Duration(cfg.Conversation.IdleTimeoutMinutes) * time.Minute
	s.router = newSessionRouter(func(transport string) *conversation.Controller {
		return conversation.NewController(
			conversation.WithTransport(transport),
			conversation.WithIDGenerator(s.nextReportID),
			conversation.WithIdleTimeout(idleTimeout),
			conversation.WithClock(func() time.Time { return s.now() }),
			conversation.WithLogger(log),
		)
	}, log)

	return s
}

// nextReportID draws report identifiers from the database so other
// processes writing to it never collide with this one.
func (s *Service) nextReportID(at time.Time) (string, error) {
	ctx, cancel := context.WithTimeout(s.background(), storageTimeout)
	defer cancel()

	return s.store.NextReportID(ctx, at)
}

// Close releases the report database.
func (s *Service) Close() error {
	return s.store.Close()
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.runCtx = ctx
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if !s.investigator.Enabled() {
		s.log.Info("No investigation provider configured, findings use the checklist")
	}
	if s.provider != nil {
		if err := s.checkProviderHealth(ctx); err != nil {
			s.log.Warn("Investigation provider is unhealthy, findings will use checklists until it recovers", "error", err)
		}
		go s.monitorProvider(ctx)
	}

	serverErrors := make(chan error, 1)
	go s.runHealthServer(ctx, serverErrors)
	go observeEvents(ctx, s.bus, s.log)
	go s.dispatchOutbound(ctx)
	go s.sweepIdle(ctx)

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(ctx, s.handleInbound)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrors:
	case runErr = <-errCh:
	}

	cancel()
	s.tasks.Wait()
	s.bus.Close()
	return runErr
}

// handleInbound routes one message: cancel words first, then commands when
// no report is in progress, then the conversation itself.
func (s *Service) handleInbound(ctx context.Context, inbound bus.InboundMessage) (bus.OutboundMessage, error) {
	unlock := s.router.lock(inbound.SessionKey())
	defer unlock()

	ctrl := s.router.controller(inbound.Channel)
	userID, chatID := inbound.SenderID, inbound.ChatID
	text := strings.TrimSpace(inbound.Content)
	active := ctrl.Active(userID, chatID)

	if isCancel(text) && (active || inbound.Addressed()) {
		reply := ctrl.Cancel(userID, chatID)
		if active {
			s.publishEvent(ctx, inbound, bus.Event{Type: bus.EventSessionCancelled})
		}
		return replyTo(inbound, reply.Text), nil
	}

	if !active {
		if !inbound.Addressed() {
			return bus.OutboundMessage{}, nil
		}
		if cmd, ok := parseCommand(text); ok && cmd.name != cmdStart {
			return replyTo(inbound, s.runCommand(ctx, inbound, cmd)), nil
		}
		return replyTo(inbound, s.start(ctx, ctrl, inbound)), nil
	}

	reply, err := ctrl.Submit(userID, chatID, text)
	switch {
	case errors.Is(err, conversation.ErrEmptyRequiredAnswer):
		s.publishEvent(ctx, inbound, bus.Event{Type: bus.EventAnswerRejected, Payload: map[string]string{"state": reply.State.String()}})
		return replyTo(inbound, reply.Text), nil
	case errors.Is(err, conversation.ErrNoActiveSession):
		// The session expired between the check and the answer.
		if !inbound.Addressed() {
			return bus.OutboundMessage{}, nil
		}
		return replyTo(inbound, s.start(ctx, ctrl, inbound)), nil
	case err != nil:
		s.log.Error("Conversation failed", "session_key", inbound.SessionKey(), "error", err)
		return bus.OutboundMessage{Channel: inbound.Channel, ChatID: inbound.ChatID, Error: err.Error()}, err
	}

	if reply.Completed {
		return replyTo(inbound, s.complete(ctx, inbound, reply)), nil
	}

	s.publishEvent(ctx, inbound, bus.Event{Type: bus.EventAnswerAccepted, Payload: map[string]string{"state": reply.State.String()}})
	return replyTo(inbound, reply.Text), nil
}

func (s *Service) start(ctx context.Context, ctrl *conversation.Controller, inbound bus.InboundMessage) string {
	reply := ctrl.Start(inbound.SenderID, inbound.ChatID)
	eventType := bus.EventSessionStarted
	if reply.Resumed {
		eventType = bus.EventSessionResumed
	}
	s.publishEvent(ctx, inbound, bus.Event{Type: eventType})
	return reply.Text
}

// complete persists a finished report, announces it to the triage chat, and
// optionally starts an investigation. Failures here only add a notice to
// the reporter's reply.
func (s *Service) complete(ctx context.Context, inbound bus.InboundMessage, reply conversation.Reply) string {
	r := *reply.Report
	text := reply.Text
	s.publishEvent(ctx, inbound, bus.Event{Type: bus.EventSessionCompleted, ReportID: r.ID, Payload: map[string]string{"priority": string(r.Priority)}})

	saveCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	err := s.store.SaveReport(saveCtx, r)
	cancel()
	if err != nil {
		s.log.Error("Saving report failed", "report_id", r.ID, "error", err)
		s.publishEvent(ctx, inbound, bus.Event{Type: bus.EventReportStored, ReportID: r.ID, Error: err.Error()})
		text += "\n\n_⚠️ I couldn't save this report, so please keep a copy of it._"
	} else {
		s.publishEvent(ctx, inbound, bus.Event{Type: bus.EventReportStored, ReportID: r.ID})
	}

	target := inbound.ChatID
	if triage := s.triageChat(inbound.Channel); triage != "" && triage != inbound.ChatID {
		target = triage
		s.publishOutbound(bus.OutboundMessage{Channel: inbound.Channel, ChatID: triage, Content: announcement(inbound.Channel, r)})
	}

	if s.cfg.Investigation.Auto && err == nil {
		s.spawn(func(ctx context.Context) {
			s.investigate(ctx, inbound.Channel, target, r)
		})
	}

	return text
}

func (s *Service) investigate(ctx context.Context, transport string, chatID string, r report.BugReport) {
	event := bus.Event{Channel: transport, ChatID: chatID, UserID: r.UserID, ReportID: r.ID, RequestID: newRequestID()}
	s.emit(ctx, event, bus.EventInvestigationStarted, nil, "")

	var channelConfig *repo.ChannelConfig
	for _, channelID := range []string{r.ChannelID, chatID} {
		cfg, err := s.store.GetChannelConfig(ctx, channelID)
		if err == nil {
			channelConfig = &cfg
			break
		}
		if !errors.Is(err, storage.ErrChannelConfigNotFound) {
			s.log.Warn("Loading channel config failed", "channel_id", channelID, "error", err)
		}
	}

	finding, err := s.investigator.Investigate(ctx, r, channelConfig)
	if err != nil {
		s.emit(ctx, event, bus.EventInvestigationFailed, nil, err.Error())
		s.publishOutbound(bus.OutboundMessage{Channel: transport, ChatID: chatID, Error: fmt.Sprintf("Investigation of %s failed: %v", r.ID, err)})
		return
	}

	s.emit(ctx, event, bus.EventInvestigationFinished, map[string]string{
		"issue":    string(finding.Focus.Primary),
		"fallback": strconv.FormatBool(finding.Fallback),
	}, "")
	s.publishOutbound(bus.OutboundMessage{
		Channel:  transport,
		ChatID:   chatID,
		Content:  investigate.FormatFinding(finding),
		Metadata: investigate.UsageMetadata(finding.Usage),
	})
}

func (s *Service) analyzeChanges(ctx context.Context, inbound bus.InboundMessage, cfg repo.ChannelConfig, days int) {
	summary, err := s.investigator.AnalyzeChanges(ctx, cfg, days)
	if err != nil {
		s.publishOutbound(bus.OutboundMessage{Channel: inbound.Channel, ChatID: inbound.ChatID, Error: fmt.Sprintf("Change analysis failed: %v", err)})
		return
	}
	s.publishOutbound(bus.OutboundMessage{Channel: inbound.Channel, ChatID: inbound.ChatID, Content: investigate.FormatChanges(summary)})
}

// spawn runs fn off the request path with the service lifetime context.
func (s *Service) spawn(fn func(context.Context)) {
	ctx := s.background()
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		fn(ctx)
	}()
}

func (s *Service) background() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.runCtx == nil {
		return context.Background()
	}
	return s.runCtx
}

func (s *Service) dispatchOutbound(ctx context.Context) {
	log := s.log.With("component", "gateway.dispatcher")
	for {
		msg, ok := s.bus.ConsumeOutbound(ctx)
		if !ok {
			return
		}
		if msg.Empty() {
			continue
		}

		poster, ok := s.posters[msg.Channel]
		if !ok {
			log.Warn("No poster for outbound message", "channel", msg.Channel, "chat_id", msg.ChatID)
			continue
		}

		text := msg.Content
		if text == "" {
			text = "⚠️ " + msg.Error
		}

		postCtx, cancel := context.WithTimeout(ctx, postTimeout)
		if err := poster.Post(postCtx, msg.ChatID, text); err != nil {
			log.Error("Posting outbound message failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		}
		cancel()
	}
}

func (s *Service) sweepIdle(ctx context.Context) {
	interval := time.Duration(s.cfg.Conversation.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Duration(config.DefaultSweepIntervalSeconds) * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.expireIdle(ctx, s.now())
		}
	}
}

// expireIdle drops idle sessions and tells their reporters.
func (s *Service) expireIdle(ctx context.Context, now time.Time) int {
	total := 0
	for transport, keys := range s.router.ExpireIdle(now) {
		for _, key := range keys {
			inbound := bus.InboundMessage{Channel: transport, SenderID: key.UserID, ChatID: key.ChannelID}
			s.publishEvent(ctx, inbound, bus.Event{Type: bus.EventSessionExpired})
			s.publishOutbound(bus.OutboundMessage{Channel: transport, ChatID: key.ChannelID, Content: expiredText(transport, key.UserID)})
			total++
		}
	}
	return total
}

func (s *Service) publishOutbound(msg bus.OutboundMessage) {
	if !s.bus.PublishOutbound(s.background(), msg) {
		s.log.Warn("Dropped outbound message", "channel", msg.Channel, "chat_id", msg.ChatID)
	}
}

func (s *Service) publishEvent(ctx context.Context, inbound bus.InboundMessage, event bus.Event) {
	event.Channel = inbound.Channel
	event.ChatID = inbound.ChatID
	event.UserID = inbound.SenderID
	s.bus.PublishEvent(ctx, event)
}

func (s *Service) emit(ctx context.Context, base bus.Event, eventType bus.EventType, payload map[string]string, errText string) {
	base.Type = eventType
	base.Payload = payload
	base.Error = errText
	s.bus.PublishEvent(ctx, base)
}

func (s *Service) triageChat(transport string) string {
	switch transport {
	case "slack":
		return strings.TrimSpace(s.cfg.Channels.Slack.TriageChannel)
	case "telegram":
		return strings.TrimSpace(s.cfg.Channels.Telegram.TriageChatID)
	default:
		return ""
	}
}

func (s *Service) storageFailure(log *slog.Logger, operation string, err error) string {
	if errors.Is(err, storage.ErrReportNotFound) {
		return "I couldn't find that report."
	}
	log.Error("Storage operation failed", "operation", operation, "error", err)
	return fmt.Sprintf("⚠️ Something went wrong while trying to %s. Please try again.", operation)
}

func (s *Service) runHealthServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = config.DefaultGatewayHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = config.DefaultGatewayPort
	}

	addr := host + ":" + strconv.Itoa(port)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	s.checkStorage(r.Context())

	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.checkStorage(r.Context())

	status := "ready"
	if !s.isReady() {
		status = "not_ready"
	}
	s.respondStatus(w, http.StatusOK, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

// investigationMode reports whether findings come from a model or only
// from the built-in checklist.
func (s *Service) investigationMode() string {
	if s.investigator.Enabled() {
		return "model"
	}
	return "checklist"
}

func (s *Service) currentStatus(status string) statusResponse {
	sessions := s.router.ActiveByTransport()
	active := 0
	for _, n := range sessions {
		active += n
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	providerLastOK := ""
	if !s.providerLastOKAt.IsZero() {
		providerLastOK = s.providerLastOKAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:           status,
		UptimeSeconds:    uptime,
		ActiveSessions:   active,
		Investigation:    s.investigationMode(),
		Sessions:         sessions,
		StorageError:     s.storageLastErr,
		ProviderLastOKAt: providerLastOK,
		ProviderLastErr:  s.providerLastErr,
		Channels:         channels,
	}
}

// isReady requires a running channel and a reachable database. A configured
// provider must also be healthy.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	anyRunning := false
	for _, state := range s.channelStates {
		if state.Running {
			anyRunning = true
			break
		}
	}
	if !anyRunning {
		return false
	}

	if s.storageLastErr != "" {
		return false
	}

	if s.provider != nil && (s.providerLastOKAt.IsZero() || s.providerLastErr != "") {
		return false
	}

	return true
}

func (s *Service) checkStorage(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	err := s.store.Ping(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.storageLastErr = errorString(err)
}

func (s *Service) monitorProvider(ctx context.Context) {
	ticker := time.NewTicker(providerHealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.checkProviderHealth(ctx)
		}
	}
}

func (s *Service) checkProviderHealth(ctx context.Context) error {
	if err := s.provider.Health(ctx); err != nil {
		s.mu.Lock()
		s.providerLastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("provider health check failed: %w", err)
	}

	s.mu.Lock()
	s.providerLastErr = ""
	s.providerLastOKAt = time.Now().UTC()
	s.mu.Unlock()

	return nil
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
