package cache

import "sync"

// FlagState is the tri-state guard for whole-collection fetches.
type FlagState int32

const (
	FlagIdle FlagState = iota
	FlagLoading
	FlagLoaded
)

func (s FlagState) String() string {
	switch s {
	case FlagIdle:
		return "IDLE"
	case FlagLoading:
		return "LOADING"
	case FlagLoaded:
		return "LOADED"
	}
	return "UNKNOWN"
}

// Flag guards a whole-collection fetch: IDLE -> LOADING -> LOADED, with a
// failed fetch resetting to IDLE so it can be retried immediately.
type Flag struct {
	mu    sync.Mutex
	state FlagState
}

// State returns the current state.
func (f *Flag) State() FlagState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Begin transitions IDLE -> LOADING and returns true. Any other state
// returns false, short-circuiting a redundant fetch.
func (f *Flag) Begin() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != FlagIdle {
		return false
	}
	f.state = FlagLoading
	return true
}

// Finish completes an in-flight fetch: LOADED on success, back to IDLE on
// failure. No backoff is enforced between retries.
func (f *Flag) Finish(ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != FlagLoading {
		return
	}
	if ok {
		f.state = FlagLoaded
	} else {
		f.state = FlagIdle
	}
}

// Reset forces the flag back to IDLE.
func (f *Flag) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = FlagIdle
}
