package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nutrichat/nutrichat-api/internal/chatlog"
	"github.com/nutrichat/nutrichat-api/internal/connectivity"
	"github.com/nutrichat/nutrichat-api/internal/consent"
	"github.com/nutrichat/nutrichat-api/internal/conversation"
	"github.com/nutrichat/nutrichat-api/internal/geminiservice"
)

var (
	// ErrRequestInFlight rejects a submit while an earlier fetch is still
	// outstanding. The send control stays disabled until the outcome lands.
	ErrRequestInFlight = errors.New("a recommendation request is already in flight")

	// ErrSessionClosed is returned by every operation after Close.
	ErrSessionClosed = errors.New("chat session is closed")
)

// Fetcher is satisfied by *geminiservice.Client.
type Fetcher interface {
	Fetch(ctx context.Context, prompt string) geminiservice.Outcome
}

// ConnectivitySource is satisfied by *connectivity.Monitor.
type ConnectivitySource interface {
	Status() connectivity.Status
	Subscribe() (<-chan connectivity.Status, func())
}

// SubmitStatus tells the transport layer what happened to an accepted,
// non-erroring submit.
type SubmitStatus string

const (
	SubmitAccepted        SubmitStatus = "accepted"
	SubmitConsentRequired SubmitStatus = "consent_required"
	SubmitOffline         SubmitStatus = "offline"
)

type SubmitResult struct {
	Status SubmitStatus
	// Disclosure is set when Status is SubmitConsentRequired.
	Disclosure string
}

// Status is the session state snapshot served by GET /chat/status.
type Status struct {
	Connected            bool `json:"connected"`
	ConsentAcknowledged  bool `json:"consent_acknowledged"`
	AwaitingCalorieInput bool `json:"awaiting_calorie_input"`
	RequestInFlight      bool `json:"request_in_flight"`
	PendingSend          bool `json:"pending_send"`
}

const eventBuffer = 16

// Session is the single actor that owns one device's conversation. All state
// lives on the run goroutine; public methods marshal work onto it through the
// command channel, and connectivity transitions and fetch completions arrive
// the same way. Nothing here needs a lock.
type Session struct {
	deviceID string
	logger   zerolog.Logger

	machine *conversation.Machine
	gate    *consent.Gate
	msgLog  *chatlog.Log
	fetcher Fetcher

	// Owned by the run goroutine.
	connected     bool
	lastKnown     connectivity.Status
	inFlight      bool
	placeholderID uuid.UUID
	subs          map[int]chan Event
	nextSub       int

	cmds      chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession builds the actor, seeds the greeting, and starts the run loop.
// The connectivity source's current status seeds the session's view; Unknown
// is treated as connected until the first probe says otherwise.
func NewSession(logger zerolog.Logger, deviceID string, gate *consent.Gate, fetcher Fetcher, conn ConnectivitySource) *Session {
	s := &Session{
		deviceID: deviceID,
		logger:   logger.With().Str("device_id", deviceID).Logger(),
		machine:  conversation.NewMachine(),
		gate:     gate,
		msgLog:   chatlog.New(),
		fetcher:  fetcher,
		subs:     make(map[int]chan Event),
		cmds:     make(chan func()),
		done:     make(chan struct{}),
	}
	s.lastKnown = conn.Status()
	s.connected = s.lastKnown != connectivity.StatusDisconnected
	s.msgLog.Append(chatlog.NewSystemMessage(noticeGreeting))

	connCh, unsubscribe := conn.Subscribe()
	go s.run(connCh, unsubscribe)
	return s
}

func (s *Session) DeviceID() string { return s.deviceID }

// do marshals fn onto the run goroutine. Once do returns nil the loop is
// guaranteed to execute fn, even if Close races with it.
func (s *Session) do(fn func()) error {
	select {
	case s.cmds <- fn:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) run(connCh <-chan connectivity.Status, unsubscribe func()) {
	defer unsubscribe()
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case st := <-connCh:
			s.applyConnectivity(st)
		case <-s.done:
			s.drain()
			return
		}
	}
}

// drain services commands accepted before Close so their reply channels are
// never left hanging, then closes subscriber channels to end their readers.
func (s *Session) drain() {
	for {
		select {
		case fn := <-s.cmds:
			fn()
		default:
			for _, ch := range s.subs {
				close(ch)
			}
			s.subs = nil
			return
		}
	}
}

// Close stops the run loop. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// SubmitText feeds user input through the offline check, the consent gate and
// the conversation machine. Blank input and a busy session come back as
// errors; everything else is a SubmitResult.
func (s *Session) SubmitText(text string) (SubmitResult, error) {
	type reply struct {
		res SubmitResult
		err error
	}
	ch := make(chan reply, 1)
	if err := s.do(func() {
		res, err := s.submit(text)
		ch <- reply{res, err}
	}); err != nil {
		return SubmitResult{}, err
	}
	r := <-ch
	return r.res, r.err
}

// GrantConsent records the acknowledgement and, if a send was parked, flushes
// it through the normal submit path. Granting with nothing pending is a no-op
// that still persists the flag.
func (s *Session) GrantConsent(ctx context.Context) (SubmitResult, error) {
	type reply struct {
		res SubmitResult
		err error
	}
	ch := make(chan reply, 1)
	if err := s.do(func() {
		res, err := s.grantConsent(ctx)
		ch <- reply{res, err}
	}); err != nil {
		return SubmitResult{}, err
	}
	r := <-ch
	return r.res, r.err
}

// CancelPending discards a consent-parked send without dispatching it.
func (s *Session) CancelPending() error {
	ch := make(chan struct{}, 1)
	if err := s.do(func() {
		s.gate.CancelPending()
		ch <- struct{}{}
	}); err != nil {
		return err
	}
	<-ch
	return nil
}

// Messages returns an ordered copy of the chat log.
func (s *Session) Messages() ([]chatlog.Message, error) {
	ch := make(chan []chatlog.Message, 1)
	if err := s.do(func() { ch <- s.msgLog.Snapshot() }); err != nil {
		return nil, err
	}
	return <-ch, nil
}

// Status reports the current session state.
func (s *Session) Status() (Status, error) {
	ch := make(chan Status, 1)
	if err := s.do(func() {
		ch <- Status{
			Connected:            s.connected,
			ConsentAcknowledged:  s.gate.Acknowledged(),
			AwaitingCalorieInput: s.machine.AwaitingCalorieInput(),
			RequestInFlight:      s.inFlight,
			PendingSend:          s.gate.Waiting(),
		}
	}); err != nil {
		return Status{}, err
	}
	return <-ch, nil
}

// Subscribe registers an event channel. Events are dropped, not blocked on,
// when the subscriber lags. The channel is closed when the session closes;
// the returned cancel stops delivery earlier.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer)
	reply := make(chan func(), 1)
	if err := s.do(func() {
		id := s.nextSub
		s.nextSub++
		s.subs[id] = ch
		reply <- func() {
			_ = s.do(func() { delete(s.subs, id) })
		}
	}); err != nil {
		close(ch)
		return ch, func() {}
	}
	return ch, <-reply
}

// --- run-goroutine internals ---

func (s *Session) submit(text string) (SubmitResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return SubmitResult{}, conversation.ErrBlankInput
	}
	if s.inFlight {
		return SubmitResult{}, ErrRequestInFlight
	}
	if !s.connected {
		s.append(chatlog.NewSystemMessage(noticeOffline))
		return SubmitResult{Status: SubmitOffline}, nil
	}
	if s.gate.RequestSend(trimmed) == consent.NeedsConsent {
		s.emit(Event{Kind: EventConsentRequired, Disclosure: noticeConsentDisclosure})
		return SubmitResult{Status: SubmitConsentRequired, Disclosure: noticeConsentDisclosure}, nil
	}
	return s.dispatch(trimmed)
}

func (s *Session) dispatch(text string) (SubmitResult, error) {
	res, err := s.machine.Submit(text)
	if err != nil {
		return SubmitResult{}, err
	}
	s.append(chatlog.NewUserMessage(text))

	switch res.Step {
	case conversation.StepAskCalories:
		s.append(chatlog.NewSystemMessage(calorieQuestion(res.Topic)))
	case conversation.StepComposePrompt:
		s.beginFetch(res.Prompt)
	}
	return SubmitResult{Status: SubmitAccepted}, nil
}

func (s *Session) grantConsent(ctx context.Context) (SubmitResult, error) {
	if err := s.gate.Grant(ctx); err != nil {
		// The in-session flag is set regardless; the flag just will not
		// survive a restart.
		s.logger.Warn().Err(err).Msg("consent acknowledged but not persisted")
	}
	text, ok := s.gate.FlushPending()
	if !ok {
		return SubmitResult{Status: SubmitAccepted}, nil
	}
	return s.submit(text)
}

// beginFetch appends the loading placeholder and dispatches the network call
// off-loop. The completion is marshaled back as a command; if the session
// closed in the meantime the outcome is dropped.
func (s *Session) beginFetch(prompt string) {
	placeholder := chatlog.NewSystemMessage(noticeLoading)
	s.append(placeholder)
	s.placeholderID = placeholder.ID
	s.inFlight = true

	go func() {
		out := s.fetcher.Fetch(context.Background(), prompt)
		if err := s.do(func() { s.completeFetch(out) }); err != nil {
			s.logger.Debug().Str("outcome", out.Kind.String()).Msg("fetch outcome dropped after session close")
		}
	}()
}

// completeFetch removes the placeholder exactly once and appends either the
// recommendation text or the failure notice. Conversation state is left
// wherever the machine put it; a failed fetch does not rewind it.
func (s *Session) completeFetch(out geminiservice.Outcome) {
	s.inFlight = false
	if s.msgLog.Remove(s.placeholderID) {
		s.emit(Event{Kind: EventMessageRemoved, MessageID: s.placeholderID.String()})
	}
	s.placeholderID = uuid.Nil

	if out.Err != nil {
		s.logger.Warn().Err(out.Err).Str("outcome", out.Kind.String()).Msg("fetch failed")
	} else {
		s.logger.Info().Str("outcome", out.Kind.String()).Msg("fetch completed")
	}
	s.append(chatlog.NewSystemMessage(noticeForOutcome(out)))
}

// applyConnectivity turns monitor transitions into chat notices. The restored
// notice is only shown when the previous known state was disconnected, so the
// first probe after startup stays silent.
func (s *Session) applyConnectivity(st connectivity.Status) {
	prev := s.lastKnown
	s.lastKnown = st

	switch st {
	case connectivity.StatusDisconnected:
		s.connected = false
		s.append(chatlog.NewSystemMessage(noticeOffline))
		s.emit(Event{Kind: EventConnectivityChanged, Connected: false})
	case connectivity.StatusConnected:
		s.connected = true
		if prev == connectivity.StatusDisconnected {
			s.append(chatlog.NewSystemMessage(noticeRestored))
		}
		s.emit(Event{Kind: EventConnectivityChanged, Connected: true})
	}
}

// append writes to the log and fans the entry out, honoring de-duplication:
// a suppressed append emits nothing.
func (s *Session) append(msg chatlog.Message) {
	if s.msgLog.Append(msg) {
		s.emit(Event{Kind: EventMessageAppended, Message: &msg})
	}
}

func (s *Session) emit(ev Event) {
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Warn().Int("subscriber", id).Str("event", string(ev.Kind)).Msg("subscriber lagging, event dropped")
		}
	}
}
