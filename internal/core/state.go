package core

import "sync"

// State holds the agent's view of the device for status reporting. The
// effect worker is the only writer of the device itself; State is fed from
// the event bus.
type State struct {
	mu        sync.RWMutex
	connected bool
	rssi      int16
	running   string
	custom    string
	profile   Profile
}

// Snapshot is a copy of State that is safe to hand out.
type Snapshot struct {
	Connected bool    `json:"connected"`
	RSSI      int16   `json:"rssi"`
	Running   string  `json:"running"`
	Custom    string  `json:"custom,omitempty"`
	Profile   Profile `json:"profile"`
}

// NewState creates a new State instance seeded with the default profile.
func NewState() *State {
	return &State{profile: DefaultProfile()}
}

// Clone returns a snapshot of the current state for safe reading.
func (s *State) Clone() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Connected: s.connected,
		RSSI:      s.rssi,
		Running:   s.running,
		Custom:    s.custom,
		Profile:   s.profile,
	}
}

// SetConnection updates connection state.
func (s *State) SetConnection(connected bool, rssi int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
	s.rssi = rssi
}

// Apply records an effect change reported by the worker.
func (s *State) Apply(c EffectChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = c.Running
	s.custom = c.Custom
	if c.Profile != nil {
		s.profile = *c.Profile
	}
}
