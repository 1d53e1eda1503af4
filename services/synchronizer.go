package services

import (
	"context"
	"sync"
	"time"

	"coinrush/models"
	"coinrush/store"

	"github.com/rs/zerolog/log"
)

const (
	defaultInboxSize  = 64
	defaultWriteQueue = 64
	writeTimeout      = 5 * time.Second
	// finishRetry spaces repeated finish writes for a round still seen as playing.
	finishRetry = time.Second
)

// GameSession is the local game the synchronizer starts and stops.
type GameSession interface {
	Start()
	Stop()
}

// ProgressRecorder persists local career stats after every round.
type ProgressRecorder interface {
	RecordGame(ctx context.Context, uid string, score int) (models.Progress, error)
}

type SyncOptions struct {
	RoundDuration       time.Duration
	HostGrace           time.Duration
	ScoreReportInterval time.Duration
	// OnPhaseChange runs on the synchronizer goroutine after every phase change.
	OnPhaseChange func(from, to models.LocalPhase)
	Progress      ProgressRecorder
	// ProfileID keys local progress. It defaults to the participant uid.
	ProfileID string
	Now       func() time.Time
}

// Synchronizer keeps one participant's local phase in line with the shared room
// document. All state is owned by the goroutine started by Run; every other method
// only posts an event to it, so reconciliation always sees the live score and phase
// and never overlaps with itself.
type Synchronizer struct {
	uid      string
	profile  string
	rooms    *RoomService
	store    store.DocumentStore
	session  GameSession
	progress ProgressRecorder
	arbiter  Arbiter
	throttle *ScoreThrottle
	now      func() time.Time
	onPhase  func(from, to models.LocalPhase)

	inbox  chan event
	writes chan writeJob
	done   chan struct{}

	// owned by the Run goroutine
	roomID        string
	gen           int
	unsubscribe   store.Unsubscribe
	state         LocalState
	last          *models.RoomRecord
	finishedRound int64
	finishAt      time.Time

	viewMu    sync.RWMutex
	viewRoom  string
	viewPhase models.LocalPhase
}

type event interface{}

type (
	enterEvent    struct{ roomID string }
	leaveEvent    struct{}
	snapshotEvent struct {
		gen int
		doc store.Document
	}
	subErrorEvent struct {
		gen int
		err error
	}
	scoreEvent struct {
		score int
		lives int
	}
	gameOverEvent struct {
		score int
		lives int
	}
	tickEvent struct{ now time.Time }
)

type writeJob struct {
	desc string
	run  func(ctx context.Context) error
}

func NewSynchronizer(uid string, st store.DocumentStore, rooms *RoomService, session GameSession, opts SyncOptions) *Synchronizer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	profile := opts.ProfileID
	if profile == "" {
		profile = uid
	}
	return &Synchronizer{
		uid:       uid,
		profile:   profile,
		rooms:     rooms,
		store:     st,
		session:   session,
		progress:  opts.Progress,
		arbiter:   Arbiter{RoundDuration: opts.RoundDuration, HostGrace: opts.HostGrace},
		throttle:  NewScoreThrottle(opts.ScoreReportInterval),
		now:       now,
		onPhase:   opts.OnPhaseChange,
		inbox:     make(chan event, defaultInboxSize),
		writes:    make(chan writeJob, defaultWriteQueue),
		done:      make(chan struct{}),
		state:     LocalState{Phase: models.PhaseMenu},
		viewPhase: models.PhaseMenu,
	}
}

// SetSession attaches the local game session. It must be called before Run.
func (s *Synchronizer) SetSession(session GameSession) {
	s.session = session
}

// Run processes events until ctx is cancelled.
func (s *Synchronizer) Run(ctx context.Context) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writer(ctx)
	}()

	defer func() {
		s.teardown()
		close(s.done)
		<-writerDone
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.inbox:
			s.handle(ctx, ev)
		}
	}
}

func (s *Synchronizer) post(ev event) {
	select {
	case s.inbox <- ev:
	case <-s.done:
	}
}

// Phase returns the current local phase.
func (s *Synchronizer) Phase() models.LocalPhase {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.viewPhase
}

// RoomID returns the room the participant is in, or "".
func (s *Synchronizer) RoomID() string {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.viewRoom
}

// CreateRoom creates a room hosted by this participant and enters it.
func (s *Synchronizer) CreateRoom(ctx context.Context, displayName string) (string, error) {
	code, err := s.rooms.Create(ctx, s.uid, displayName)
	if err != nil {
		return "", err
	}
	s.post(enterEvent{roomID: code})
	return code, nil
}

// JoinRoom joins an existing room. Rejections leave the local phase unchanged.
func (s *Synchronizer) JoinRoom(ctx context.Context, roomID, displayName string) error {
	rec, err := s.rooms.Join(ctx, roomID, s.uid, displayName)
	if err != nil {
		return err
	}
	s.post(enterEvent{roomID: rec.ID})
	return nil
}

func (s *Synchronizer) StartMatch(ctx context.Context) error {
	roomID := s.RoomID()
	if roomID == "" {
		return ErrNotInRoom
	}
	return s.rooms.StartMatch(ctx, roomID)
}

func (s *Synchronizer) RestartLobby(ctx context.Context) error {
	roomID := s.RoomID()
	if roomID == "" {
		return ErrNotInRoom
	}
	return s.rooms.RestartLobby(ctx, roomID)
}

// Leave drops the local room reference. The shared entry stays in the room.
func (s *Synchronizer) Leave() {
	s.post(leaveEvent{})
}

// ReportScoreUpdate feeds the live score. Reports are throttled.
func (s *Synchronizer) ReportScoreUpdate(score, lives int) {
	s.post(scoreEvent{score: score, lives: lives})
}

// ReportRoundResult is called when the local round ends.
func (s *Synchronizer) ReportRoundResult(score, lives int) {
	s.post(gameOverEvent{score: score, lives: lives})
}

// Tick lets the frame loop re-run arbitration and flush throttled scores.
func (s *Synchronizer) Tick(now time.Time) {
	s.post(tickEvent{now: now})
}

func (s *Synchronizer) handle(ctx context.Context, ev event) {
	switch e := ev.(type) {
	case enterEvent:
		s.handleEnter(ctx, e.roomID)
	case leaveEvent:
		s.dropRoom("left room")
	case snapshotEvent:
		s.handleSnapshot(e)
	case subErrorEvent:
		if e.gen != s.gen {
			return
		}
		log.Warn().Err(e.err).Str("room", s.roomID).Msg("room subscription failed")
		s.dropRoom("subscription lost")
	case scoreEvent:
		s.handleScore(e)
	case gameOverEvent:
		s.handleGameOver(e)
	case tickEvent:
		s.handleTick(e.now)
	}
}

func (s *Synchronizer) handleEnter(ctx context.Context, roomID string) {
	if roomID == s.roomID && s.unsubscribe != nil {
		return
	}
	s.teardown()

	s.gen++
	gen := s.gen
	unsubscribe, err := s.store.Subscribe(ctx, models.RoomsCollection, roomID,
		func(doc store.Document) { s.post(snapshotEvent{gen: gen, doc: doc}) },
		func(err error) { s.post(subErrorEvent{gen: gen, err: err}) },
	)
	if err != nil {
		log.Warn().Err(err).Str("room", roomID).Msg("could not subscribe to room")
		s.roomID = ""
		s.last = nil
		s.setView()
		s.setPhase(models.PhaseMenu)
		return
	}

	s.roomID = roomID
	s.unsubscribe = unsubscribe
	s.last = nil
	s.finishedRound = 0
	s.finishAt = time.Time{}
	s.state.StartedRound = 0
	s.throttle.Reset()
	s.setView()
	s.setPhase(models.PhaseLobby)
	log.Info().Str("room", roomID).Str("uid", s.uid).Msg("entered room")
}

// teardown unsubscribes exactly once and invalidates in-flight snapshots.
func (s *Synchronizer) teardown() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.gen++
}

func (s *Synchronizer) dropRoom(reason string) {
	if s.roomID == "" && s.state.Phase == models.PhaseMenu {
		return
	}
	s.teardown()
	if s.state.Phase == models.PhasePlaying && s.session != nil {
		s.session.Stop()
	}
	log.Info().Str("room", s.roomID).Str("reason", reason).Msg("leaving room")
	s.roomID = ""
	s.last = nil
	s.throttle.Reset()
	s.setView()
	s.setPhase(models.PhaseMenu)
}

func (s *Synchronizer) handleSnapshot(e snapshotEvent) {
	if e.gen != s.gen || s.roomID == "" {
		return
	}
	rec, err := models.RoomFromDocument(e.doc)
	if err != nil {
		log.Warn().Err(err).Str("room", s.roomID).Msg("ignoring malformed room snapshot")
		return
	}
	s.last = &rec
	s.reconcile(rec)
	s.arbitrate(rec, s.now())
}

func (s *Synchronizer) reconcile(rec models.RoomRecord) {
	next, effect := Reconcile(s.state, rec, s.uid)

	switch effect.Kind {
	case EffectStart:
		s.throttle.Reset()
		if s.session != nil {
			s.session.Start()
		}
	case EffectForceGameOver:
		if s.session != nil {
			s.session.Stop()
		}
		s.submitResult(effect.Score, effect.Lives)
		s.setPhase(models.PhaseSpectating)
	}

	if effect.Kind != EffectNone {
		log.Debug().Str("room", rec.ID).Stringer("effect", effect.Kind).Msg("reconciled snapshot")
	}
	phase := next.Phase
	next.Phase = s.state.Phase
	s.state = next
	s.setPhase(phase)
}

func (s *Synchronizer) arbitrate(rec models.RoomRecord, now time.Time) {
	decision := s.arbiter.Evaluate(rec, s.uid, now)
	if !decision.Finish {
		return
	}
	// The round stays playing until a finished snapshot arrives, so a lost or
	// failed write is issued again.
	if *rec.StartTime == s.finishedRound && now.Sub(s.finishAt) < finishRetry {
		return
	}
	s.finishedRound = *rec.StartTime
	s.finishAt = now
	roomID := s.roomID
	log.Info().Str("room", roomID).Str("reason", string(decision.Reason)).Msg("ending round")
	s.enqueue("finish round", func(ctx context.Context) error {
		return s.rooms.FinishRound(ctx, roomID)
	})
}

func (s *Synchronizer) handleScore(e scoreEvent) {
	if s.state.Phase != models.PhasePlaying {
		return
	}
	s.state.Score = e.score
	s.state.Lives = e.lives
	if s.roomID == "" {
		return
	}
	if score, due := s.throttle.Offer(e.score, s.now()); due {
		s.enqueueScore(score)
	}
}

func (s *Synchronizer) handleGameOver(e gameOverEvent) {
	if s.state.Phase != models.PhasePlaying {
		return
	}
	s.state.Score = e.score
	s.state.Lives = e.lives
	s.submitResult(e.score, e.lives)
	s.setPhase(models.PhaseSpectating)
	if s.last != nil {
		s.reconcile(*s.last)
	}
}

func (s *Synchronizer) handleTick(now time.Time) {
	if s.roomID == "" {
		return
	}
	if s.state.Phase == models.PhasePlaying {
		if score, due := s.throttle.Flush(now); due {
			s.enqueueScore(score)
		}
	}
	if s.last != nil {
		s.arbitrate(*s.last, now)
	}
}

func (s *Synchronizer) enqueueScore(score int) {
	roomID, uid := s.roomID, s.uid
	s.enqueue("score update", func(ctx context.Context) error {
		return s.rooms.ReportScore(ctx, roomID, uid, score)
	})
}

func (s *Synchronizer) submitResult(score, lives int) {
	s.throttle.Reset()
	roomID, uid := s.roomID, s.uid
	status := ResultStatus(lives)
	s.enqueue("round result", func(ctx context.Context) error {
		return s.rooms.ReportResult(ctx, roomID, uid, score, status)
	})
	if s.progress != nil {
		profile := s.profile
		s.enqueue("record progress", func(ctx context.Context) error {
			_, err := s.progress.RecordGame(ctx, profile, score)
			return err
		})
	}
}

// enqueue hands a write to the writer goroutine without blocking. Writes are
// fire-and-forget: a full queue drops the write.
func (s *Synchronizer) enqueue(desc string, run func(ctx context.Context) error) {
	select {
	case s.writes <- writeJob{desc: desc, run: run}:
	default:
		log.Warn().Str("write", desc).Msg("write queue full, dropping write")
	}
}

func (s *Synchronizer) writer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.writes:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			if err := job.run(wctx); err != nil {
				log.Warn().Err(err).Str("write", job.desc).Str("uid", s.uid).Msg("write failed")
			}
			cancel()
		}
	}
}

func (s *Synchronizer) setView() {
	s.viewMu.Lock()
	s.viewRoom = s.roomID
	s.viewMu.Unlock()
}

func (s *Synchronizer) setPhase(phase models.LocalPhase) {
	from := s.state.Phase
	s.state.Phase = phase
	s.viewMu.Lock()
	s.viewPhase = phase
	s.viewMu.Unlock()
	if from == phase {
		return
	}
	log.Info().Str("uid", s.uid).Str("room", s.roomID).Str("from", from.String()).Str("to", phase.String()).Msg("phase changed")
	if s.onPhase != nil {
		s.onPhase(from, phase)
	}
}
