package cli

import (
	"log/slog"

	"github.com/roach88/oilflow/internal/engine"
	"github.com/roach88/oilflow/internal/workflow"
)

// withEngine opens the engine for the duration of fn.
func withEngine(opts *RootOptions, fn func(*engine.Engine) error) error {
	e, err := openEngine(opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			slog.Warn("closing engine", "error", err)
		}
	}()
	return fn(e)
}

// payloadOf converts key=value flags into an event payload.
func payloadOf(kv map[string]string) workflow.Payload {
	if len(kv) == 0 {
		return nil
	}
	p := make(workflow.Payload, len(kv))
	for k, v := range kv {
		p[k] = v
	}
	return p
}
