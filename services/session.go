package services

import (
	"sync"
	"time"
)

const (
	StartingLives = 3
	CoinValue     = 10
)

// SessionListener receives the events a local round produces.
type SessionListener interface {
	ReportScoreUpdate(score, lives int)
	ReportRoundResult(score, lives int)
}

type SessionState struct {
	Running   bool
	Score     int
	Lives     int
	Coins     int
	Remaining time.Duration
}

// Session holds the transient state of one local round: score, lives, coins and the
// countdown. Movement and collision live elsewhere; they call CollectCoin and Hit.
type Session struct {
	mu       sync.Mutex
	listener SessionListener
	duration time.Duration
	now      func() time.Time

	running  bool
	deadline time.Time
	score    int
	lives    int
	coins    int
}

func NewSession(duration time.Duration, listener SessionListener) *Session {
	return &Session{
		listener: listener,
		duration: duration,
		now:      time.Now,
		lives:    StartingLives,
	}
}

func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.deadline = s.now().Add(s.duration)
	s.score = 0
	s.coins = 0
	s.lives = StartingLives
}

// Stop halts the round without emitting a result.
func (s *Session) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Session) CollectCoin() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.coins++
	s.score += CoinValue
	score, lives := s.score, s.lives
	s.mu.Unlock()

	s.listener.ReportScoreUpdate(score, lives)
}

// Hit costs a life. Losing the last life ends the round.
func (s *Session) Hit() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.lives--
	if s.lives > 0 {
		score, lives := s.score, s.lives
		s.mu.Unlock()
		s.listener.ReportScoreUpdate(score, lives)
		return
	}
	s.running = false
	score := s.score
	s.mu.Unlock()

	s.listener.ReportRoundResult(score, 0)
}

// Step advances the countdown; the round ends when it reaches zero.
func (s *Session) Step(now time.Time) {
	s.mu.Lock()
	if !s.running || now.Before(s.deadline) {
		s.mu.Unlock()
		return
	}
	s.running = false
	score, lives := s.score, s.lives
	s.mu.Unlock()

	s.listener.ReportRoundResult(score, lives)
}

func (s *Session) State(now time.Time) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SessionState{
		Running: s.running,
		Score:   s.score,
		Lives:   s.lives,
		Coins:   s.coins,
	}
	if s.running {
		st.Remaining = s.deadline.Sub(now)
		if st.Remaining < 0 {
			st.Remaining = 0
		}
	}
	return st
}
