package domains

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpl "github.com/chromedp/cdproto/log"
)

// Log exposes the CDP Log domain actions.
type Log interface {
	Enable(context.Context) error
}

var _ Log = &logDomain{}

type logDomain struct {
	exec cdp.Executor
}

// NewLog returns a new CDP Log domain wrapper.
func NewLog(exec cdp.Executor) Log {
	return &logDomain{exec}
}

func (l *logDomain) Enable(ctx context.Context) error {
	if err := cdpl.Enable().Do(cdp.WithExecutor(ctx, l.exec)); err != nil {
		return fmt.Errorf("enabling log CDP domain: %w", err)
	}

	return nil
}
