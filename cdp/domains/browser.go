package domains

import (
	"context"
	"fmt"

	cdpb "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	cdpt "github.com/chromedp/cdproto/target"
)

// Browser exposes the CDP Browser domain actions used by the driver.
type Browser interface {
	Close(ctx context.Context) error
	GetVersion(ctx context.Context) (
		protocolVersion, product, revision, userAgent, jsVersion string, err error,
	)
	GetWindowForTarget(ctx context.Context, targetID string) (windowID int64, width, height int64, err error)
	SetWindowBounds(ctx context.Context, windowID, width, height int64) error
}

var _ Browser = &browser{}

type browser struct {
	exec cdp.Executor
}

// NewBrowser returns a new CDP Browser domain wrapper.
func NewBrowser(exec cdp.Executor) Browser {
	return &browser{exec}
}

func (b *browser) Close(ctx context.Context) error {
	action := cdpb.Close()
	return action.Do(cdp.WithExecutor(ctx, b.exec))
}

func (b *browser) GetVersion(ctx context.Context) (
	protocolVersion, product, revision, userAgent, jsVersion string, err error,
) {
	action := cdpb.GetVersion()
	return action.Do(cdp.WithExecutor(ctx, b.exec))
}

func (b *browser) GetWindowForTarget(ctx context.Context, targetID string) (int64, int64, int64, error) {
	action := cdpb.GetWindowForTarget().WithTargetID(cdpt.ID(targetID))
	windowID, bounds, err := action.Do(cdp.WithExecutor(ctx, b.exec))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("getting window for target %q: %w", targetID, err)
	}
	if bounds == nil {
		return int64(windowID), 0, 0, nil
	}

	return int64(windowID), bounds.Width, bounds.Height, nil
}

func (b *browser) SetWindowBounds(ctx context.Context, windowID, width, height int64) error {
	// A maximized or minimized window ignores width and height.
	normal := cdpb.SetWindowBounds(cdpb.WindowID(windowID), &cdpb.Bounds{
		WindowState: cdpb.WindowStateNormal,
	})
	if err := normal.Do(cdp.WithExecutor(ctx, b.exec)); err != nil {
		return fmt.Errorf("restoring window %d: %w", windowID, err)
	}

	action := cdpb.SetWindowBounds(cdpb.WindowID(windowID), &cdpb.Bounds{
		Width:  width,
		Height: height,
	})
	if err := action.Do(cdp.WithExecutor(ctx, b.exec)); err != nil {
		return fmt.Errorf("setting window %d bounds to %dx%d: %w", windowID, width, height, err)
	}

	return nil
}
