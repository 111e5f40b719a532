package health

import (
	"context"
	"fmt"

	"github.com/soven-tech/soven-server/pkg/provider/tts"
)

// Pinger is the subset of a connection pool needed for the database check.
// *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database returns a checker that pings the database pool.
func Database(p Pinger) Checker {
	return Checker{
		Name: "database",
		Check: func(ctx context.Context) error {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
			return nil
		},
	}
}

// Synthesis returns a checker that probes the TTS provider by listing its
// voice catalogue. An empty catalogue counts as unhealthy: a session could
// not speak with it.
func Synthesis(p tts.Provider) Checker {
	return Checker{
		Name: "tts",
		Check: func(ctx context.Context) error {
			voices, err := p.ListVoices(ctx)
			if err != nil {
				return fmt.Errorf("list voices: %w", err)
			}
			if len(voices) == 0 {
				return fmt.Errorf("no voices available")
			}
			return nil
		},
	}
}
