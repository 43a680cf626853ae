package driver

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/editorqa/uidriver/api"
)

type clickCall struct {
	xpath, scope string
	index        int
	button       api.MouseButton
}

// fakeSession is an in-memory api.Session whose DOM is scripted by the
// test through query and clickErr.
type fakeSession struct {
	mu sync.Mutex

	// query returns the matches of the n-th query, counting from 1.
	query    func(xpath, scope string, n int) ([]api.Element, error)
	queries  int
	clickErr func(n int) error
	clicks   []clickCall

	navigateErr error
	navigated   []string
	evaluated   []string
	size        api.Size
	sizes       []api.Size

	logs []api.LogEntry

	// dialogAfter opens a dialog once HandleDialog was called this many
	// times; -1 never opens one.
	dialogAfter int
	dialogCalls int
	handled     []bool

	screenshot []byte
	inserted   []string
	pressed    []string
	quitErr    error
	quits      int
}

var _ api.Session = &fakeSession{}

func newFakeSession() *fakeSession {
	return &fakeSession{
		dialogAfter: -1,
		size:        api.Size{Width: 800, Height: 600},
		screenshot:  []byte("\x89PNG fake"),
	}
}

func visible(texts ...string) []api.Element {
	els := make([]api.Element, 0, len(texts))
	for i, t := range texts {
		els = append(els, api.Element{Index: i, Tag: "div", Text: t, Visible: true})
	}
	return els
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = append(s.navigated, url)
	return s.navigateErr
}

func (s *fakeSession) QueryXPath(_ context.Context, xpath, scope string) ([]api.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.query == nil {
		return nil, nil
	}
	return s.query(xpath, scope, s.queries)
}

func (s *fakeSession) Click(_ context.Context, xpath, scope string, index int, button api.MouseButton) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks = append(s.clicks, clickCall{xpath, scope, index, button})
	if s.clickErr == nil {
		return nil
	}
	return s.clickErr(len(s.clicks))
}

func (s *fakeSession) Evaluate(_ context.Context, expression string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluated = append(s.evaluated, expression)
	return json.RawMessage("null"), nil
}

func (s *fakeSession) InsertText(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, text)
	return nil
}

func (s *fakeSession) PressKey(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pressed = append(s.pressed, key)
	return nil
}

func (s *fakeSession) Logs(context.Context) ([]api.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.logs
	s.logs = nil
	if out == nil {
		out = []api.LogEntry{}
	}
	return out, nil
}

func (s *fakeSession) HandleDialog(_ context.Context, accept bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogCalls++
	if s.dialogAfter < 0 || s.dialogCalls <= s.dialogAfter {
		return api.ErrNoDialog
	}
	s.handled = append(s.handled, accept)
	return nil
}

func (s *fakeSession) WindowSize(context.Context) (api.Size, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size, nil
}

func (s *fakeSession) SetWindowSize(_ context.Context, size api.Size) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = size
	s.sizes = append(s.sizes, size)
	return nil
}

func (s *fakeSession) Screenshot(context.Context) ([]byte, error) {
	return s.screenshot, nil
}

func (s *fakeSession) Quit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quits++
	return s.quitErr
}

func (s *fakeSession) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

// recordingObserver keeps every observed operation.
type recordingObserver struct {
	mu  sync.Mutex
	ops []string
}

func (o *recordingObserver) Observe(_ context.Context, op string, _ time.Duration, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op+":"+outcome)
}
