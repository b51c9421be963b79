package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/codebuildervaibhav/speech-recognition/internal/apperr"
	"github.com/codebuildervaibhav/speech-recognition/internal/logging"
	"github.com/codebuildervaibhav/speech-recognition/internal/segment"
)

// errContentChanged marks restorer output that altered non-punctuation text.
var errContentChanged = errors.New("restorer changed non-punctuation content")

// restoreAll punctuates every segment with bounded concurrency. A segment
// whose restoration fails keeps its original text. The output is indexed like
// segs regardless of completion order. Only cancellation of ctx is an error.
func (r *run) restoreAll(ctx context.Context, segs []string) ([]string, int, error) {
	out := make([]string, len(segs))
	var fallbacks atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.p.opts.RestoreConcurrency)

	for i, seg := range segs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			restored, err := r.p.restoreOne(gctx, seg)
			if err == nil {
				out[i] = restored
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			r.log.Warn().
				Err(apperr.Restoration(fmt.Sprintf("segment %d", i), err)).
				Int("segment", i).
				Int("length", segment.Length(seg)).
				Str("content", logging.Truncate(seg, 50)).
				Msg("punctuation restoration failed, keeping original text")
			out[i] = seg
			fallbacks.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	return out, int(fallbacks.Load()), nil
}

// restoreOne calls the restorer with per-attempt timeout and backoff retries.
// Output that does not preserve the segment's content is rejected without
// retrying.
func (p *Pipeline) restoreOne(ctx context.Context, seg string) (string, error) {
	op := func() (string, error) {
		actx := ctx
		if p.opts.RestoreTimeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, p.opts.RestoreTimeout)
			defer cancel()
		}

		out, err := p.deps.Restorer.Restore(actx, seg)
		if err != nil {
			return "", err
		}
		if !preservesContent(seg, out) {
			return "", backoff.Permanent(errContentChanged)
		}
		return out, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.RetryInterval

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.opts.RestoreAttempts)),
	)
}

// preservesContent reports whether restored equals original once
// punctuation and whitespace are ignored.
func preservesContent(original, restored string) bool {
	return stripPunct(original) == stripPunct(restored)
}

func stripPunct(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
