package desktop

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Resolver finds a single element under a window from partial criteria.
type Resolver struct {
	poll time.Duration
	log  *zap.Logger
}

// NewResolver creates a Resolver re-reading the tree every pollInterval.
func NewResolver(pollInterval time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{poll: pollInterval, log: logger.Named("resolver")}
}

// Resolve returns the first element in traversal order that satisfies every
// supplied hint, waiting up to wait for it to be visible. The title hint
// matches literally and case-insensitively anywhere in the element text.
func (r *Resolver) Resolve(ctx context.Context, w Window, c Criteria, wait time.Duration) (Element, error) {
	if c.Empty() {
		return nil, &InvalidArgumentError{Arg: "criteria", Reason: "element_title and/or control_type is required"}
	}
	m := c.compile()

	var found Element
	ok, err := poll(ctx, wait, r.poll, func(ctx context.Context) (bool, error) {
		elements, err := w.Descendants(ctx)
		if err != nil {
			return false, err
		}
		for _, el := range elements {
			if !m.match(el) {
				continue
			}
			// The first match is the target; keep waiting while it is hidden.
			if !el.Visible() {
				return false, nil
			}
			found = el
			return true, nil
		}
		return false, nil
	})
	if ok {
		return found, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	r.log.Debug("Element not resolved.", zap.Stringer("criteria", c), zap.String("window", w.Title()), zap.Error(err))
	return nil, &ElementNotFoundError{Criteria: c, Wait: wait, Err: err}
}
