// Package api defines the browser session contract that the driver is
// written against and that every backend implements.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotInteractable is returned when a matched element cannot receive
	// a click, e.g. it is obscured by another element, disabled, or was
	// detached before the click landed.
	ErrNotInteractable = errors.New("element is not interactable")

	// ErrNoDialog is returned when handling a JavaScript dialog while none
	// is open.
	ErrNoDialog = errors.New("no JavaScript dialog is open")

	// ErrDialogOpen is returned when the page cannot run scripts because a
	// JavaScript dialog blocks it.
	ErrDialogOpen = errors.New("a JavaScript dialog is open")

	// ErrSessionClosed is returned by a session after Quit.
	ErrSessionClosed = errors.New("browser session closed")
)

// MouseButton is the button used for a click.
type MouseButton string

// Supported mouse buttons.
const (
	MouseButtonLeft  MouseButton = "left"
	MouseButtonRight MouseButton = "right"
)

// Element is a snapshot of one DOM node matched by an XPath query.
type Element struct {
	// Index of the node in the query's match set, in document order.
	Index    int     `json:"index"`
	Tag      string  `json:"tag"`
	Text     string  `json:"text"`
	Visible  bool    `json:"visible"`
	Disabled bool    `json:"disabled"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// LogEntry is one console message collected from the page.
type LogEntry struct {
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	Source    string    `json:"source,omitempty"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ConsoleLevel folds console API types and browser log levels into
// debug, info, warning and error.
func ConsoleLevel(kind string) string {
	switch kind {
	case "verbose", "debug", "trace":
		return "debug"
	case "warning", "warn":
		return "warning"
	case "error", "assert":
		return "error"
	default:
		return "info"
	}
}

// Size is a window size in CSS pixels.
type Size struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// ParseSize parses a size given as WIDTHxHEIGHT or WIDTH,HEIGHT.
func ParseSize(s string) (Size, error) {
	parts := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == 'x' || r == ','
	})
	if len(parts) != 2 {
		return Size{}, fmt.Errorf("size %q should be WIDTHxHEIGHT", s)
	}
	w, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return Size{}, fmt.Errorf("width %q: %w", parts[0], err)
	}
	h, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return Size{}, fmt.Errorf("height %q: %w", parts[1], err)
	}
	if w <= 0 || h <= 0 {
		return Size{}, fmt.Errorf("size %q should be positive", s)
	}

	return Size{Width: w, Height: h}, nil
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Session is a live connection to one browser page under automation.
//
// XPath queries are evaluated in the page. When scope is not empty it is
// an XPath whose first match becomes the context node for xpath.
type Session interface {
	Navigate(ctx context.Context, url string) error
	QueryXPath(ctx context.Context, xpath, scope string) ([]Element, error)
	Click(ctx context.Context, xpath, scope string, index int, button MouseButton) error
	Evaluate(ctx context.Context, expression string) (json.RawMessage, error)
	InsertText(ctx context.Context, text string) error
	PressKey(ctx context.Context, key string) error
	// Logs drains the console entries collected since the previous call.
	Logs(ctx context.Context) ([]LogEntry, error)
	HandleDialog(ctx context.Context, accept bool) error
	WindowSize(ctx context.Context) (Size, error)
	SetWindowSize(ctx context.Context, size Size) error
	Screenshot(ctx context.Context) ([]byte, error)
	Quit(ctx context.Context) error
}

// SessionFactory creates sessions. Each call returns a new, independent
// session the caller is responsible for quitting.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// SessionFactoryFunc adapts a function to a SessionFactory.
type SessionFactoryFunc func(ctx context.Context) (Session, error)

// NewSession calls f(ctx).
func (f SessionFactoryFunc) NewSession(ctx context.Context) (Session, error) {
	return f(ctx)
}
