package domains

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpt "github.com/chromedp/cdproto/target"
)

// TargetInfo describes a browser target.
type TargetInfo struct {
	ID   string
	Type string
	URL  string
}

// Target exposes the CDP Target domain actions used to find and attach
// to a page.
type Target interface {
	GetTargets(ctx context.Context) ([]TargetInfo, error)
	CreateTarget(ctx context.Context, url string) (id string, err error)
	AttachToTarget(ctx context.Context, id string) (sessionID string, err error)
}

var _ Target = &target{}

type target struct {
	exec cdp.Executor
}

// NewTarget returns a new CDP Target domain wrapper.
func NewTarget(exec cdp.Executor) Target {
	return &target{exec}
}

func (t *target) GetTargets(ctx context.Context) ([]TargetInfo, error) {
	action := cdpt.GetTargets()
	infos, err := action.Do(cdp.WithExecutor(ctx, t.exec))
	if err != nil {
		return nil, fmt.Errorf("getting targets: %w", err)
	}

	targets := make([]TargetInfo, 0, len(infos))
	for _, ti := range infos {
		targets = append(targets, TargetInfo{
			ID:   string(ti.TargetID),
			Type: ti.Type,
			URL:  ti.URL,
		})
	}

	return targets, nil
}

func (t *target) CreateTarget(ctx context.Context, url string) (string, error) {
	action := cdpt.CreateTarget(url)
	id, err := action.Do(cdp.WithExecutor(ctx, t.exec))
	if err != nil {
		return "", fmt.Errorf("creating target for %q: %w", url, err)
	}

	return string(id), nil
}

// AttachToTarget attaches in flat mode, so that messages to the target are
// routed by session ID over the browser connection.
func (t *target) AttachToTarget(ctx context.Context, id string) (string, error) {
	action := cdpt.AttachToTarget(cdpt.ID(id)).WithFlatten(true)
	sid, err := action.Do(cdp.WithExecutor(ctx, t.exec))
	if err != nil {
		return "", fmt.Errorf("attaching to target %q: %w", id, err)
	}

	return string(sid), nil
}
