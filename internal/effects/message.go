package effects

import "kblight/internal/core"

// MessageKind tags a Message.
type MessageKind int

const (
	MsgRefresh MessageKind = iota
	MsgProfile
	MsgCustomEffect
	MsgExit
)

func (k MessageKind) String() string {
	switch k {
	case MsgRefresh:
		return "refresh"
	case MsgProfile:
		return "profile"
	case MsgCustomEffect:
		return "custom_effect"
	case MsgExit:
		return "exit"
	}
	return "unknown"
}

// Message is one command for the worker. Profile is set for MsgProfile and
// Custom for MsgCustomEffect. Epoch is stamped at submission.
type Message struct {
	Kind    MessageKind
	Profile core.Profile
	Custom  core.CustomEffect
	Epoch   uint64
}
