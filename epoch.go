package core

import (
	"sync"
	"time"

	"github.com/facebookgo/clock"
)

// EpochScheduler is the logical clock shared by both pools. It only moves
// when TryAdvance or ForceNewEpoch is called.
type EpochScheduler struct {
	clk    clock.Clock
	length time.Duration
	window time.Duration

	mu    sync.RWMutex
	epoch uint64
	start int64
}

func NewEpochScheduler(clk clock.Clock, length, requestWindow time.Duration) *EpochScheduler {
	if length <= 0 {
		length = DEFAULT_EPOCH_LENGTH
	}
	if requestWindow > length {
		requestWindow = length
	}
	return &EpochScheduler{
		clk:    clk,
		length: length,
		window: requestWindow,
		start:  clk.Now().Unix(),
	}
}

func (s *EpochScheduler) CurrentEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

func (s *EpochScheduler) EpochStart() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.start
}

func (s *EpochScheduler) Length() time.Duration {
	return s.length
}

// TryAdvance starts a new epoch if the current one has run its full length.
func (s *EpochScheduler) TryAdvance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now().Unix()
	if now-s.start < int64(s.length/time.Second) {
		return false
	}
	s.epoch++
	s.start = now
	return true
}

func (s *EpochScheduler) ForceNewEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.start = s.clk.Now().Unix()
	return s.epoch
}

// InRequestWindow reports whether withdraw requests may be stamped now.
// A zero window leaves requests open for the whole epoch.
func (s *EpochScheduler) InRequestWindow() bool {
	if s.window <= 0 {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clk.Now().Unix()-s.start < int64(s.window/time.Second)
}

// IsReady reports whether a request stamped at requestEpoch has served
// its timelock.
func (s *EpochScheduler) IsReady(requestEpoch uint64, timelock uint64) bool {
	return s.CurrentEpoch() >= requestEpoch+timelock
}

// Countdown estimates how long until a request stamped now becomes
// executable: the rest of the current epoch plus timelock-1 full epochs.
func (s *EpochScheduler) Countdown(timelock uint64) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elapsed := time.Duration(s.clk.Now().Unix()-s.start) * time.Second
	left := s.length - elapsed
	if left < 0 {
		left = 0
	}
	if timelock == 0 {
		return 0
	}
	return left + time.Duration(timelock-1)*s.length
}

// Restore resumes from a checkpointed epoch.
func (s *EpochScheduler) Restore(epoch uint64, start int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch = epoch
	s.start = start
}
