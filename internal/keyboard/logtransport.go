package keyboard

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogTransport logs every report instead of sending it anywhere. It lets the
// agent run on machines without the keyboard.
type LogTransport struct {
	mu     sync.Mutex
	count  int
	last   []byte
	logger zerolog.Logger
}

// NewLogTransport creates a LogTransport.
func NewLogTransport() *LogTransport {
	return &LogTransport{logger: log.With().Str("component", "keyboard-log").Logger()}
}

func (t *LogTransport) Write(report []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count++
	t.last = append(t.last[:0], report...)
	t.logger.Debug().Int("frame", t.count).Hex("report", report).Msg("report")
	return nil
}

// Last returns a copy of the most recent report.
func (t *LogTransport) Last() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.last...)
}

func (t *LogTransport) Close() error { return nil }
