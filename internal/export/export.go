// Package export writes analysis results to files and databases.
package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/neural-chilli/codesworth/internal/callgraph"
	"github.com/neural-chilli/codesworth/internal/engine"
	"github.com/rs/zerolog/log"
)

// Sink persists a completed run somewhere
type Sink interface {
	Name() string
	Write(ctx context.Context, res *engine.Result) error
}

// WriteAll writes res to every sink. A failing sink does not stop the
// others; the errors are joined.
func WriteAll(ctx context.Context, res *engine.Result, sinks ...Sink) error {
	var errs []error
	for _, sink := range sinks {
		if err := sink.Write(ctx, res); err != nil {
			log.Error().Err(err).Str("sink", sink.Name()).Msg("export failed")
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		log.Info().Str("sink", sink.Name()).Str("run_id", res.RunID).Msg("exported run")
	}
	return errors.Join(errs...)
}

// nodeKey is the stable identity used for graph nodes in every store
func nodeKey(sig callgraph.MethodSignature) string {
	key := sig.FilePath + "#"
	if sig.Namespace != "" {
		key += sig.Namespace + "."
	}
	return key + sig.DisplayName()
}
