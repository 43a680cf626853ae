package browser

import (
	"github.com/dop251/goja"
)

// isNullish tells whether v is missing, undefined or null.
func isNullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

// export returns the Go value of v, nil for nullish values.
func export(v goja.Value) any {
	if isNullish(v) {
		return nil
	}
	return v.Export()
}
