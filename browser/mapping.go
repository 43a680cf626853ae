package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/editorqa/uidriver/api"
	"github.com/editorqa/uidriver/driver"
)

// mapping is a JS object backed by Go functions.
type mapping = map[string]any

// install sets the script globals: the suite functions, the driver
// helpers both as globals and on the driver object, the scope map,
// expect, console and __ENV.
func (vu *scriptVU) install() error {
	rt := vu.rt

	helpers := mapDriver(vu)
	obj := rt.NewObject()
	for name, fn := range helpers {
		if err := obj.Set(name, fn); err != nil {
			return fmt.Errorf("mapping driver.%s: %w", name, err)
		}
	}
	helpers["getDriver"] = func() (goja.Value, error) {
		if _, err := vu.driver(); err != nil {
			return nil, err
		}
		return obj, nil
	}
	if err := obj.Set("getDriver", helpers["getDriver"]); err != nil {
		return fmt.Errorf("mapping driver.getDriver: %w", err)
	}

	test := rt.ToValue(vu.testFunc(false)).ToObject(rt)
	if err := test.Set("skip", vu.testFunc(true)); err != nil {
		return fmt.Errorf("mapping test.skip: %w", err)
	}

	globals := mapping{
		"driver":    obj,
		"scope":     mapScopes(),
		"describe":  vu.describe,
		"test":      test,
		"it":        test,
		"beforeAll": func(fn goja.Value) error { return vu.hook(&vu.current.beforeAll, fn) },
		"afterAll":  func(fn goja.Value) error { return vu.hook(&vu.current.afterAll, fn) },
		"expect":    vu.expect,
		"console":   mapConsole(vu),
		"__ENV":     environ(),
	}
	for name, fn := range helpers {
		globals[name] = fn
	}
	for name, v := range globals {
		if err := rt.Set(name, v); err != nil {
			return fmt.Errorf("setting global %s: %w", name, err)
		}
	}

	return nil
}

// environ returns the process environment as a map.
func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// mapDriver maps the driver helpers, as called by scenario scripts.
func mapDriver(vu *scriptVU) mapping { //nolint:funlen
	return mapping{
		"loadUri": func(uri string) error {
			d, err := vu.driver()
			if err != nil {
				return err
			}
			return d.LoadURI(vu.ctx, uri) //nolint:wrapcheck
		},
		"findByText": func(text string, scope goja.Value) (api.Element, error) {
			scopes, err := parseScope(scope)
			if err != nil {
				return api.Element{}, err
			}
			d, err := vu.driver()
			if err != nil {
				return api.Element{}, err
			}
			return d.FindByText(vu.ctx, text, scopes...) //nolint:wrapcheck
		},
		"findByXpath": func(xpath string, scope goja.Value) (api.Element, error) {
			scopes, err := parseScope(scope)
			if err != nil {
				return api.Element{}, err
			}
			d, err := vu.driver()
			if err != nil {
				return api.Element{}, err
			}
			return d.FindByXPath(vu.ctx, xpath, scopes...) //nolint:wrapcheck
		},
		"notExistsByXpath": func(xpath string) error {
			d, err := vu.driver()
			if err != nil {
				return err
			}
			return d.NotExistsByXPath(vu.ctx, xpath) //nolint:wrapcheck
		},
		"elementIsVisible": func(xpath string) (bool, error) {
			d, err := vu.driver()
			if err != nil {
				return false, err
			}
			return d.ElementIsVisible(vu.ctx, xpath) //nolint:wrapcheck
		},
		"clickText": func(text string, scope goja.Value) error {
			scopes, err := parseScope(scope)
			if err != nil {
				return err
			}
			d, err := vu.driver()
			if err != nil {
				return err
			}
			return d.ClickText(vu.ctx, text, scopes...) //nolint:wrapcheck
		},
		"clickXpath": func(xpath string, scope goja.Value) error {
			scopes, err := parseScope(scope)
			if err != nil {
				return err
			}
			d, err := vu.driver()
			if err != nil {
				return err
			}
			return d.ClickXPath(vu.ctx, xpath, scopes...) //nolint:wrapcheck
		},
		"clickButton": func(text string) error {
			d, err := vu.driver()
			if err != nil {
				return err
			}
			return d.ClickButton(vu.ctx, text) //nolint:wrapcheck
		},
		"rightClickText": func(text string, scope goja.Value) error {
			scopes, err := parseScope(scope)
			if err != nil {
				return err
			}
			d, err := vu.driver()
			if err != nil {
				return err
			}
			return d.RightClickText(vu.ctx, text, scopes...) //nolint:wrapcheck
		},
		"typeText": func(text string) error {
			d, err := vu.driver()
			if err != nil {
				return err
			}
			return d.TypeText(vu.ctx, text) //nolint:wrapcheck
		},
		"pressKey": func(key string) error {
			d, err := vu.driver()
			if err != nil {
				return err
			}
			return d.PressKey(vu.ctx, key) //nolint:wrapcheck
		},
		"getLogs": func(ignore ...string) ([]api.LogEntry, error) {
			d, err := vu.driver()
			if err != nil {
				return nil, err
			}
			return d.GetLogs(vu.ctx, ignore...) //nolint:wrapcheck
		},
		"acceptAlert": func() error {
			d, err := vu.driver()
			if err != nil {
				return err
			}
			return d.AcceptAlert(vu.ctx) //nolint:wrapcheck
		},
		"dismissAlert": func() error {
			d, err := vu.driver()
			if err != nil {
				return err
			}
			return d.DismissAlert(vu.ctx) //nolint:wrapcheck
		},
		"windowSize": func() (api.Size, error) {
			d, err := vu.driver()
			if err != nil {
				return api.Size{}, err
			}
			return d.WindowSize(vu.ctx) //nolint:wrapcheck
		},
		"setWindowSize": func(width, height int64) error {
			d, err := vu.driver()
			if err != nil {
				return err
			}
			return d.SetWindowSize(vu.ctx, api.Size{Width: width, Height: height}) //nolint:wrapcheck
		},
		"screenshot": func(path string) error {
			d, err := vu.driver()
			if err != nil {
				return err
			}
			return d.Screenshot(vu.ctx, path) //nolint:wrapcheck
		},
		"sleep": func(ms int64) error {
			t := time.NewTimer(time.Duration(ms) * time.Millisecond)
			defer t.Stop()
			select {
			case <-t.C:
				return nil
			case <-vu.ctx.Done():
				return vu.ctx.Err() //nolint:wrapcheck
			}
		},
		"quit": func() error {
			return vu.harness.Quit(vu.ctx) //nolint:wrapcheck
		},
	}
}

func mapScopes() mapping {
	m := make(mapping, len(driver.Scopes))
	for name, s := range driver.Scopes {
		m[name] = s
	}
	return m
}

// parseScope accepts a scope value from the scope map, a scope name, or
// nothing.
func parseScope(v goja.Value) ([]driver.Scope, error) {
	if isNullish(v) {
		return nil, nil
	}
	switch s := v.Export().(type) {
	case driver.Scope:
		return []driver.Scope{s}, nil
	case string:
		if sc, ok := driver.Scopes[s]; ok {
			return []driver.Scope{sc}, nil
		}
		return nil, fmt.Errorf("unknown scope %q", s)
	default:
		return nil, fmt.Errorf("scope should be one of the scope map values, got %T", s)
	}
}

func (vu *scriptVU) describe(name string, fn goja.Value) error {
	body, ok := goja.AssertFunction(fn)
	if !ok {
		return fmt.Errorf("describe %q: body should be a function", name)
	}

	parent := vu.current
	child := &suite{name: name}
	parent.items = append(parent.items, suiteItem{suite: child})
	vu.current = child
	defer func() { vu.current = parent }()

	if _, err := body(goja.Undefined()); err != nil {
		return fmt.Errorf("describe %q: %w", name, scriptError(err))
	}
	return nil
}

func (vu *scriptVU) testFunc(skip bool) func(string, goja.Value) error {
	return func(name string, fn goja.Value) error {
		body, ok := goja.AssertFunction(fn)
		if !ok {
			return fmt.Errorf("test %q: body should be a function", name)
		}
		vu.current.items = append(vu.current.items, suiteItem{
			test: &testCase{name: name, fn: body, skip: skip},
		})
		return nil
	}
}

func (vu *scriptVU) hook(hooks *[]goja.Callable, fn goja.Value) error {
	body, ok := goja.AssertFunction(fn)
	if !ok {
		return errors.New("hook should be a function")
	}
	*hooks = append(*hooks, body)
	return nil
}

// expect returns the matchers of actual.
func (vu *scriptVU) expect(actual goja.Value) mapping {
	return mapping{
		"toEqual": func(expected goja.Value) error {
			eq, err := deepEqual(actual, expected)
			if err != nil {
				return err
			}
			if !eq {
				return fmt.Errorf("expected %s to equal %s", describeValue(actual), describeValue(expected))
			}
			return nil
		},
		"toBe": func(expected goja.Value) error {
			if !actual.StrictEquals(expected) {
				return fmt.Errorf("expected %s to be %s", describeValue(actual), describeValue(expected))
			}
			return nil
		},
		"toBeTruthy": func() error {
			if !actual.ToBoolean() {
				return fmt.Errorf("expected %s to be truthy", describeValue(actual))
			}
			return nil
		},
	}
}

func mapConsole(vu *scriptVU) mapping {
	logf := func(level string) func(...goja.Value) {
		return func(args ...goja.Value) {
			parts := make([]string, 0, len(args))
			for _, a := range args {
				parts = append(parts, a.String())
			}
			msg := strings.Join(parts, " ")
			switch level {
			case "warn":
				vu.logger.Warnf("console", "%s", msg)
			case "error":
				vu.logger.Errorf("console", "%s", msg)
			default:
				vu.logger.Infof("console", "%s", msg)
			}
		}
	}
	return mapping{
		"log":   logf("info"),
		"info":  logf("info"),
		"warn":  logf("warn"),
		"error": logf("error"),
	}
}

// deepEqual compares two script values by their JSON form, so Go values
// mapped into the script compare equal to script literals.
func deepEqual(a, b goja.Value) (bool, error) {
	na, err := normalize(a)
	if err != nil {
		return false, err
	}
	nb, err := normalize(b)
	if err != nil {
		return false, err
	}
	return reflect.DeepEqual(na, nb), nil
}

func normalize(v goja.Value) (any, error) {
	buf, err := json.Marshal(export(v))
	if err != nil {
		return nil, fmt.Errorf("comparing %s: %w", describeValue(v), err)
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, fmt.Errorf("comparing %s: %w", describeValue(v), err)
	}
	return out, nil
}

func describeValue(v goja.Value) string {
	if buf, err := json.Marshal(export(v)); err == nil {
		return string(buf)
	}
	return v.String()
}
