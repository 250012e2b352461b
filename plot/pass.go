package plot

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/marben/adaptive_mandel/chunk"
	"github.com/marben/adaptive_mandel/workerpool"
)

// Submitter is the part of a worker pool a Pass needs. *workerpool.Pool
// implements it.
type Submitter interface {
	Submit(task workerpool.Task) (*workerpool.Future, error)
}

// Pass runs every unit once at its current ceiling.
type Pass struct {
	units []*chunk.Chunk
}

func NewPass(units []*chunk.Chunk) Pass {
	return Pass{units: units}
}

// Run submits every unit to pool and waits for all of them. It returns the
// first error in submission order, but only once every submitted unit has
// finished. A unit that panicked is reported as a *chunk.StrategyError.
func (p Pass) Run(ctx context.Context, pool Submitter) error {
	_, span := tracer.Start(ctx, "plot.pass", trace.WithAttributes(
		attribute.Int("units", len(p.units)),
	))
	defer span.End()

	futures := make([]*workerpool.Future, 0, len(p.units))
	var submitErr error
	for _, c := range p.units {
		f, err := pool.Submit(func() (any, error) {
			return nil, c.Run()
		})
		if err != nil {
			submitErr = fmt.Errorf("submitting unit %v: %w", c.Geometry(), err)
			break
		}
		futures = append(futures, f)
	}

	var first error
	for i, f := range futures {
		_, err := f.Wait()
		if err != nil && first == nil {
			first = asStrategyError(p.units[i], err)
		}
	}
	if first == nil {
		first = submitErr
	}

	if first != nil {
		span.RecordError(first)
		span.SetStatus(codes.Error, first.Error())
	}
	return first
}

func asStrategyError(c *chunk.Chunk, err error) error {
	var se *chunk.StrategyError
	if errors.As(err, &se) || errors.Is(err, workerpool.ErrCancelled) || errors.Is(err, workerpool.ErrClosed) {
		return err
	}
	return &chunk.StrategyError{Tile: c.Tile(), Fractal: c.Fractal().Name(), Err: err}
}
