// Package challenge referees the escape minigame. The game itself runs in
// the extension popup; the daemon only counts shots and hits so a session
// cannot be ended by replaying a single "won" message.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

const (
	DefaultShots     = 3
	DefaultHitsToWin = 3
)

var ErrNotInPlay = errors.New("no challenge in play")

// State represents the referee state
type State int

const (
	StateIdle State = iota
	StateInPlay
	StateWon
	StateLost
)

func (s State) String() string {
	switch s {
	case StateInPlay:
		return "in_play"
	case StateWon:
		return "won"
	case StateLost:
		return "lost"
	default:
		return "idle"
	}
}

// Result is the referee's view after an action
type Result struct {
	State          State
	Score          int
	ShotsRemaining int
	Message        string
}

func (r Result) Won() bool  { return r.State == StateWon }
func (r Result) Lost() bool { return r.State == StateLost }

// Referee tracks one challenge round at a time
type Referee struct {
	mu        sync.Mutex
	state     State
	score     int
	remaining int

	shots     int
	hitsToWin int

	onWin func(ctx context.Context)
}

func NewReferee(shots, hitsToWin int) *Referee {
	return &Referee{
		state:     StateIdle,
		shots:     shots,
		hitsToWin: hitsToWin,
	}
}

// OnWin sets the callback run, outside the lock, when a round is won
func (r *Referee) OnWin(fn func(ctx context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onWin = fn
}

// Start begins a fresh round, discarding any round in progress
func (r *Referee) Start() Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = StateInPlay
	r.score = 0
	r.remaining = r.shots
	return r.resultLocked(fmt.Sprintf("%d SHOTS MAX! Score %d points to break free!", r.shots, r.hitsToWin))
}

// Shot records one shot
func (r *Referee) Shot(ctx context.Context, hit bool) (Result, error) {
	r.mu.Lock()
	if r.state != StateInPlay {
		res := r.resultLocked("")
		r.mu.Unlock()
		return res, ErrNotInPlay
	}

	r.remaining--
	if hit {
		r.score++
	}

	var msg string
	switch {
	case r.score >= r.hitsToWin:
		r.state = StateWon
		msg = "YOU WIN! UNLOCKING EVERYTHING!"
	case r.remaining <= 0:
		r.state = StateLost
		msg = "GO LOCK IN!"
	case hit:
		msg = fmt.Sprintf("GREAT SHOT! %d more to win!", r.hitsToWin-r.score)
	default:
		msg = fmt.Sprintf("Missed. %d shots left.", r.remaining)
	}

	res := r.resultLocked(msg)
	onWin := r.onWin
	r.mu.Unlock()

	if res.Won() && onWin != nil {
		onWin(ctx)
	}
	return res, nil
}

// Reset abandons the current round
func (r *Referee) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateIdle
	r.score = 0
	r.remaining = 0
}

// Result returns the current round without changing it
func (r *Referee) Result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resultLocked("")
}

func (r *Referee) resultLocked(msg string) Result {
	return Result{
		State:          r.state,
		Score:          r.score,
		ShotsRemaining: r.remaining,
		Message:        msg,
	}
}
