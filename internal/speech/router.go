package speech

import (
	"context"

	"github.com/pkg/errors"

	"github.com/chadiek/aura-companion/internal/i18n"
)

// ErrNoSynthesizer is reported when no engine serves the requested language.
var ErrNoSynthesizer = errors.New("no speech synthesizer for language")

// LanguageRouter dispatches synthesis to a per-language engine.
type LanguageRouter struct {
	routes   map[i18n.Language]Synthesizer
	fallback Synthesizer
}

// NewLanguageRouter returns a router using fallback for unrouted languages.
// fallback may be nil.
func NewLanguageRouter(fallback Synthesizer) *LanguageRouter {
	return &LanguageRouter{routes: map[i18n.Language]Synthesizer{}, fallback: fallback}
}

// Route registers synth for lang. A nil synth is ignored.
func (r *LanguageRouter) Route(lang i18n.Language, synth Synthesizer) *LanguageRouter {
	if synth != nil {
		r.routes[lang] = synth
	}
	return r
}

// Empty reports whether the router has no engine at all.
func (r *LanguageRouter) Empty() bool {
	return r.fallback == nil && len(r.routes) == 0
}

func (r *LanguageRouter) StreamPCM48k(ctx context.Context, text string, opts SynthesisOptions) (<-chan []byte, <-chan error) {
	synth, ok := r.routes[opts.Lang]
	if !ok {
		synth = r.fallback
	}
	if synth == nil {
		pcm := make(chan []byte)
		errc := make(chan error, 1)
		close(pcm)
		errc <- errors.Wrapf(ErrNoSynthesizer, "lang %q", opts.Lang)
		close(errc)
		return pcm, errc
	}
	return synth.StreamPCM48k(ctx, text, opts)
}
