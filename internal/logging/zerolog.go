package logging

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Zerolog components sit on the hot path (signing, correlation, offset
// updates) where the hand-rolled Logger's map-allocating WithField chain
// costs more than it should. They log through zerolog instead, matching
// the rest of this codebase's mixed usage of both loggers.
var (
	zerologOnce sync.Once
	zerologBase zerolog.Logger
)

func zerologRoot() zerolog.Logger {
	zerologOnce.Do(func() {
		zerologBase = zerolog.New(os.Stdout).With().Timestamp().Logger()
	})
	return zerologBase
}

// Zerolog returns a zerolog.Logger scoped to component.
func Zerolog(component string) zerolog.Logger {
	return zerologRoot().With().Str("component", component).Logger()
}
