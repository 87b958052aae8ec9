package llm

import (
	"context"
	"iter"
	"log/slog"
	"strings"
)

// Backend streams the reply of a hosted model to the given turns, the last
// of which is the current user turn.
type Backend interface {
	Stream(ctx context.Context, system string, turns []Turn) iter.Seq2[string, error]
}

type Generator struct {
	backend Backend
	system  string
	apology string
	log     *slog.Logger
}

func NewGenerator(backend Backend, system, apology string, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		backend: backend,
		system:  system,
		apology: apology,
		log:     log,
	}
}

// Generate returns the reply to prompt as a single-use sequence of
// fragments. Once the sequence is fully consumed the exchange is appended to
// h. A backend failure yields the apology fragment instead and leaves h
// untouched, as does a consumer that stops early.
func (g *Generator) Generate(ctx context.Context, prompt string, h *History) iter.Seq[string] {
	return func(yield func(string) bool) {
		turns := append(h.Turns(), Turn{Role: RoleUser, Text: prompt})

		var full strings.Builder
		for chunk, err := range g.backend.Stream(ctx, g.system, turns) {
			if err != nil {
				g.log.Error("Failed to generate reply", "err", err)
				yield(g.apology)
				return
			}
			if chunk == "" {
				continue
			}
			full.WriteString(chunk)
			if !yield(chunk) {
				return
			}
		}

		h.Append(
			Turn{Role: RoleUser, Text: prompt},
			Turn{Role: RoleAssistant, Text: full.String()},
		)
		g.log.Debug("Reply complete", "chars", full.Len(), "history", h.Len())
	}
}
