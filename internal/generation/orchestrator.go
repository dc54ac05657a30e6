package generation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"storyforge/internal/logging"
	"storyforge/internal/scene"
	"storyforge/internal/services"
)

type completion struct {
	req     Request
	result  Result
	elapsed time.Duration
}

// GenerateBatch dispatches items concurrently against client and applies the
// results to session. It never returns an error; failures are reported in the
// BatchResult and in the session's status table.
//
// A (scene, kind) pair may appear once per batch. Later duplicates are
// reported as ErrInvalidParameter failures and never dispatched.
func GenerateBatch(ctx context.Context, session *scene.Session, items []Request, client Client, opts ...Option) BatchResult {
	o := buildOptions(opts)
	logger := logging.WithContext(ctx, o.logger).With(logging.String(logging.FieldSessionID, session.ID()))

	var result BatchResult
	dispatch := make([]Request, 0, len(items))
	seen := make(map[scene.Key]struct{}, len(items))
	for _, req := range items {
		if err := validateRequest(req, seen); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ItemError{SceneID: req.SceneID, Kind: req.Kind, Err: err})
			logger.Warn("generation request rejected",
				logging.Int(logging.FieldSceneID, req.SceneID),
				logging.String(logging.FieldAssetKind, string(req.Kind)),
				logging.Error(err),
				logging.String(logging.FieldEventType, "generation_rejected"),
			)
			continue
		}
		seen[req.Key()] = struct{}{}
		dispatch = append(dispatch, req)
	}

	if len(dispatch) == 0 {
		return result
	}

	// Every pair is InFlight before the first request leaves.
	for _, req := range dispatch {
		session.SetStatus(req.Key(), scene.InFlight, nil)
		o.record(ctx, logger, Transition{
			SessionID: session.ID(),
			SceneID:   req.SceneID,
			Kind:      req.Kind,
			Status:    scene.InFlight,
			At:        o.now(),
		})
	}

	logger.Info("generation batch dispatched",
		logging.Int("requests", len(dispatch)),
		logging.Int("concurrency_limit", o.limit),
		logging.String(logging.FieldEventType, "generation_batch_start"),
	)

	completions := make(chan completion, len(dispatch))
	applied := make(chan BatchResult, 1)
	go func() {
		applied <- fanIn(ctx, session, completions, len(dispatch), o, logger)
	}()

	var g errgroup.Group
	if o.limit > 0 {
		g.SetLimit(o.limit)
	}
	for _, req := range dispatch {
		g.Go(func() error {
			start := o.now()
			res := invoke(ctx, client, req)
			completions <- completion{req: req, result: res, elapsed: o.now().Sub(start)}
			return nil
		})
	}
	_ = g.Wait()
	close(completions)

	batch := <-applied
	result.Succeeded += batch.Succeeded
	result.Failed += batch.Failed
	result.Errors = append(result.Errors, batch.Errors...)
	slices.SortStableFunc(result.Errors, func(a, b ItemError) int {
		if a.SceneID != b.SceneID {
			return a.SceneID - b.SceneID
		}
		return strings.Compare(string(a.Kind), string(b.Kind))
	})

	logger.Info("generation batch complete",
		logging.Int("succeeded", result.Succeeded),
		logging.Int("failed", result.Failed),
		logging.String(logging.FieldEventType, "generation_batch_complete"),
	)
	return result
}

// GenerateOne regenerates a single asset with the same status transitions as
// a batch. It returns the recorded failure, or nil on success.
func GenerateOne(ctx context.Context, session *scene.Session, req Request, client Client, opts ...Option) error {
	result := GenerateBatch(ctx, session, []Request{req}, client, opts...)
	if len(result.Errors) > 0 {
		return result.Errors[0]
	}
	return nil
}

// GenerateDetached runs one request and returns the normalized reference
// without touching any session. Thumbnails use it since they are not keyed
// by scene.
func GenerateDetached(ctx context.Context, req Request, client Client, opts ...Option) (string, error) {
	o := buildOptions(opts)
	if err := validateRequest(req, nil); err != nil {
		return "", err
	}
	ref, _, err := materialize(req, invoke(ctx, client, req), o.voiceSampleRate)
	return ref, err
}

func validateRequest(req Request, seen map[scene.Key]struct{}) error {
	if !req.Kind.Valid() {
		return services.Wrap(services.ErrInvalidParameter, "generation", "validate",
			fmt.Sprintf("unknown asset kind %q", req.Kind), nil)
	}
	if _, dup := seen[req.Key()]; dup {
		return services.Wrap(services.ErrInvalidParameter, "generation", "validate",
			fmt.Sprintf("duplicate request for %s", req.Key()), nil)
	}
	return nil
}

// invoke shields the batch from a misbehaving client.
func invoke(ctx context.Context, client Client, req Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failure{Reason: fmt.Sprintf("client panic: %v", r)}
		}
	}()
	if err := ctx.Err(); err != nil {
		return Failure{Reason: "cancelled before dispatch", Err: err}
	}
	res = client.Generate(ctx, req)
	if res == nil {
		return Failure{Reason: "client returned no result"}
	}
	return res
}

// fanIn is the only writer of status and asset entries for the batch.
func fanIn(ctx context.Context, session *scene.Session, completions <-chan completion, total int, o options, logger *slog.Logger) BatchResult {
	var (
		result  BatchResult
		done    int
		sampler = logging.NewProgressSampler(10)
	)
	for c := range completions {
		key := c.req.Key()
		itemLogger := logger.With(
			logging.Int(logging.FieldSceneID, key.SceneID),
			logging.String(logging.FieldAssetKind, string(key.Kind)),
		)
		ref, size, err := materialize(c.req, c.result, o.voiceSampleRate)
		transition := Transition{
			SessionID: session.ID(),
			SceneID:   key.SceneID,
			Kind:      key.Kind,
			Bytes:     size,
			Elapsed:   c.elapsed,
			At:        o.now(),
		}
		if err != nil {
			session.SetStatus(key, scene.Failed, err)
			result.Failed++
			result.Errors = append(result.Errors, ItemError{SceneID: key.SceneID, Kind: key.Kind, Err: err})
			transition.Status = scene.Failed
			transition.Err = err
			itemLogger.Warn("scene asset generation failed",
				logging.Error(err),
				logging.Duration("elapsed", c.elapsed),
				logging.String(logging.FieldEventType, "generation_failed"),
			)
		} else {
			session.SetAsset(key.Kind, key.SceneID, ref)
			session.SetStatus(key, scene.Succeeded, nil)
			result.Succeeded++
			transition.Status = scene.Succeeded
			itemLogger.Debug("scene asset generated",
				logging.Int("bytes", size),
				logging.Duration("elapsed", c.elapsed),
			)
		}
		o.record(ctx, itemLogger, transition)

		done++
		progress := Progress{Completed: done, Total: total}
		if o.progress != nil {
			o.progress(progress)
		}
		if sampler.ShouldLog(progress.Percent(), "generation") {
			logger.Info("generation progress",
				logging.Int("completed", progress.Completed),
				logging.Int("total", progress.Total),
				logging.Float64("percent", progress.Percent()),
			)
		}
	}
	return result
}

func (o options) record(ctx context.Context, logger *slog.Logger, t Transition) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordTransition(ctx, t); err != nil {
		logger.Warn("generation transition not recorded",
			logging.Error(err),
			logging.String(logging.FieldEventType, "ledger_write_failed"),
		)
	}
}
