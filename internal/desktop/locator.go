package desktop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Locator binds a title fragment to a live top-level window.
type Locator struct {
	desktop Desktop
	poll    time.Duration
	log     *zap.Logger
}

// NewLocator creates a Locator polling desk every pollInterval.
func NewLocator(desk Desktop, pollInterval time.Duration, logger *zap.Logger) *Locator {
	return &Locator{desktop: desk, poll: pollInterval, log: logger.Named("locator")}
}

// Locate returns the first visible window whose title contains fragment,
// case-insensitively and literally. A window whose title equals the fragment
// (ignoring case) is preferred over partial matches. Locate never focuses the
// window.
func (l *Locator) Locate(ctx context.Context, fragment string, timeout time.Duration) (Window, error) {
	if strings.TrimSpace(fragment) == "" {
		return nil, &InvalidArgumentError{Arg: "window_title", Reason: "must not be empty"}
	}
	pattern := literalPattern(fragment)

	var (
		found      Window
		candidates int
	)
	ok, err := poll(ctx, timeout, l.poll, func(ctx context.Context) (bool, error) {
		windows, err := l.desktop.Windows(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to enumerate windows: %w", err)
		}
		candidates = 0
		var matches []Window
		for _, w := range windows {
			if !w.Visible() {
				continue
			}
			candidates++
			if pattern.MatchString(w.Title()) {
				matches = append(matches, w)
			}
		}
		if len(matches) == 0 {
			return false, nil
		}
		found = matches[0]
		for _, w := range matches {
			if strings.EqualFold(w.Title(), fragment) {
				found = w
				break
			}
		}
		if len(matches) > 1 {
			l.log.Debug("Several windows match; taking the best one.",
				zap.String("fragment", fragment),
				zap.Int("matches", len(matches)),
				zap.String("chosen", found.Title()))
		}
		return true, nil
	})
	if ok {
		return found, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		l.log.Debug("Window enumeration failed while locating.", zap.String("fragment", fragment), zap.Error(err))
	}
	return nil, &AmbiguousOrNotFoundError{Fragment: fragment, Timeout: timeout, Candidates: candidates}
}

// Titles lists the titles of visible windows with a non-empty title.
func (l *Locator) Titles(ctx context.Context) ([]string, error) {
	windows, err := l.desktop.Windows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate windows: %w", err)
	}
	var titles []string
	for _, w := range windows {
		if w.Visible() && w.Title() != "" {
			titles = append(titles, w.Title())
		}
	}
	return titles, nil
}
