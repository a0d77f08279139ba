package invalidator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Wikid82/revalidator/internal/logger"
	"github.com/Wikid82/revalidator/internal/metrics"
	"github.com/Wikid82/revalidator/internal/models"
)

const (
	DefaultConcurrency = 8
	DefaultKeyTimeout  = 5 * time.Second
)

// Result reports which keys of a plan were invalidated.
type Result struct {
	Paths  []string `json:"paths"`
	Tags   []string `json:"tags"`
	Errors []string `json:"errors,omitempty"`
}

// OK reports whether every key succeeded.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// Dispatcher applies an invalidation plan key by key. A failing or slow key
// never prevents the others from being attempted.
type Dispatcher struct {
	inv         Invalidator
	concurrency int
	keyTimeout  time.Duration
}

// NewDispatcher wraps inv. Non-positive values fall back to the defaults.
func NewDispatcher(inv Invalidator, concurrency int, keyTimeout time.Duration) *Dispatcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if keyTimeout <= 0 {
		keyTimeout = DefaultKeyTimeout
	}
	return &Dispatcher{inv: inv, concurrency: concurrency, keyTimeout: keyTimeout}
}

type outcome struct {
	kind  Kind
	value string
	err   error
}

// Execute invalidates every path and tag in plan. The returned lists keep
// plan order and contain only keys that succeeded; errors are formatted as
// "path <p>: <err>" or "tag <t>: <err>".
func (d *Dispatcher) Execute(ctx context.Context, plan models.InvalidationPlan) Result {
	keys := make([]outcome, 0, len(plan.Paths)+len(plan.Tags))
	for _, p := range plan.Paths {
		keys = append(keys, outcome{kind: KindPath, value: p})
	}
	for _, t := range plan.Tags {
		keys = append(keys, outcome{kind: KindTag, value: t})
	}

	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)
	for i := range keys {
		i := i
		g.Go(func() error {
			keys[i].err = d.invalidate(ctx, keys[i].kind, keys[i].value)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Paths: []string{}, Tags: []string{}}
	for _, k := range keys {
		metrics.IncInvalidation(string(k.kind), k.err == nil)
		if k.err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s %s: %v", k.kind, k.value, k.err))
			continue
		}
		if k.kind == KindPath {
			res.Paths = append(res.Paths, k.value)
		} else {
			res.Tags = append(res.Tags, k.value)
		}
	}
	if len(res.Errors) > 0 {
		logger.Component("invalidator").WithField("failed", len(res.Errors)).Warn("some invalidations failed")
	}
	return res
}

func (d *Dispatcher) invalidate(ctx context.Context, kind Kind, value string) error {
	ctx, cancel := context.WithTimeout(ctx, d.keyTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		if kind == KindPath {
			done <- d.inv.InvalidatePath(ctx, value)
			return
		}
		done <- d.inv.InvalidateTag(ctx, value)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("timed out: %w", ctx.Err())
	}
}
