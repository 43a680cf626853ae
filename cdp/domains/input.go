package domains

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpi "github.com/chromedp/cdproto/input"
)

// KeyEvent describes one key press dispatched through the Input domain.
type KeyEvent struct {
	Key       string
	Code      string
	Text      string
	KeyCode   int64
	Location  int64
	Modifiers int64
}

// Input exposes the CDP Input domain actions.
type Input interface {
	MouseClick(ctx context.Context, x, y float64, button string) error
	KeyPress(ctx context.Context, key KeyEvent) error
	InsertText(ctx context.Context, text string) error
}

var _ Input = &input{}

type input struct {
	exec cdp.Executor
}

// NewInput returns a new CDP Input domain wrapper.
func NewInput(exec cdp.Executor) Input {
	return &input{exec}
}

// MouseClick moves the mouse to x,y and presses and releases button once.
func (i *input) MouseClick(ctx context.Context, x, y float64, button string) error {
	btn := cdpi.MouseButton(button)
	ctx = cdp.WithExecutor(ctx, i.exec)

	if err := cdpi.DispatchMouseEvent(cdpi.MouseMoved, x, y).Do(ctx); err != nil {
		return fmt.Errorf("moving mouse to (%.0f, %.0f): %w", x, y, err)
	}
	for _, typ := range []cdpi.MouseType{cdpi.MousePressed, cdpi.MouseReleased} {
		action := cdpi.DispatchMouseEvent(typ, x, y).
			WithButton(btn).
			WithClickCount(1)
		if err := action.Do(ctx); err != nil {
			return fmt.Errorf("dispatching %s %s at (%.0f, %.0f): %w", button, typ, x, y, err)
		}
	}

	return nil
}

func (i *input) KeyPress(ctx context.Context, key KeyEvent) error {
	ctx = cdp.WithExecutor(ctx, i.exec)

	down := cdpi.DispatchKeyEvent(cdpi.KeyRawDown)
	if key.Text != "" {
		down = cdpi.DispatchKeyEvent(cdpi.KeyDown).WithText(key.Text).WithUnmodifiedText(key.Text)
	}
	down = down.
		WithModifiers(cdpi.Modifier(key.Modifiers)).
		WithLocation(key.Location).
		WithKey(key.Key).
		WithCode(key.Code).
		WithWindowsVirtualKeyCode(key.KeyCode).
		WithNativeVirtualKeyCode(key.KeyCode)
	if err := down.Do(ctx); err != nil {
		return fmt.Errorf("dispatching key down %q: %w", key.Key, err)
	}

	up := cdpi.DispatchKeyEvent(cdpi.KeyUp).
		WithModifiers(cdpi.Modifier(key.Modifiers)).
		WithLocation(key.Location).
		WithKey(key.Key).
		WithCode(key.Code).
		WithWindowsVirtualKeyCode(key.KeyCode).
		WithNativeVirtualKeyCode(key.KeyCode)
	if err := up.Do(ctx); err != nil {
		return fmt.Errorf("dispatching key up %q: %w", key.Key, err)
	}

	return nil
}

func (i *input) InsertText(ctx context.Context, text string) error {
	if err := cdpi.InsertText(text).Do(cdp.WithExecutor(ctx, i.exec)); err != nil {
		return fmt.Errorf("inserting text: %w", err)
	}

	return nil
}
