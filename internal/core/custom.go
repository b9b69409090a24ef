package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// StepType selects how a custom effect step reaches its colors.
type StepType string

const (
	StepSet        StepType = "set"
	StepTransition StepType = "transition"
)

// Step is one entry of a custom effect.
type Step struct {
	Type       StepType
	RGB        RGBArray
	Speed      uint8
	Brightness uint8
	// Steps and DelayBetweenSteps only apply to transitions.
	Steps             uint8
	DelayBetweenSteps time.Duration
	// Sleep is how long the step is held before the next one starts.
	Sleep time.Duration
}

// CustomEffect is an ordered list of steps, optionally repeated forever.
type CustomEffect struct {
	Name       string `json:"name,omitempty"`
	Steps      []Step `json:"effect_steps"`
	ShouldLoop bool   `json:"should_loop"`
}

type stepJSON struct {
	Type              StepType `json:"type"`
	RGB               RGBArray `json:"rgb_array"`
	Speed             uint8    `json:"speed"`
	Brightness        uint8    `json:"brightness"`
	Steps             uint8    `json:"steps,omitempty"`
	DelayBetweenSteps int64    `json:"delay_between_steps,omitempty"`
	Sleep             int64    `json:"sleep"`
}

// MarshalJSON writes durations as milliseconds.
func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(stepJSON{
		Type:              s.Type,
		RGB:               s.RGB,
		Speed:             s.Speed,
		Brightness:        s.Brightness,
		Steps:             s.Steps,
		DelayBetweenSteps: s.DelayBetweenSteps.Milliseconds(),
		Sleep:             s.Sleep.Milliseconds(),
	})
}

// UnmarshalJSON reads durations as milliseconds.
func (s *Step) UnmarshalJSON(data []byte) error {
	var j stepJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	if j.Type == "" {
		j.Type = StepSet
	}
	if j.Type != StepSet && j.Type != StepTransition {
		return fmt.Errorf("unknown step type %q", j.Type)
	}
	*s = Step{
		Type:              j.Type,
		RGB:               j.RGB,
		Speed:             j.Speed,
		Brightness:        j.Brightness,
		Steps:             j.Steps,
		DelayBetweenSteps: time.Duration(j.DelayBetweenSteps) * time.Millisecond,
		Sleep:             time.Duration(j.Sleep) * time.Millisecond,
	}
	return nil
}
