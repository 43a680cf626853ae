// Package js embeds the scripts evaluated in the page under test.
package js

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

// XPathScript evaluates to an object with helpers to query nodes by XPath
// and to find the point where a matched element can be clicked.
//
//go:embed xpath.js
var XPathScript string

// Call returns an expression calling method of XPathScript with args
// encoded as JSON.
func Call(method string, args ...any) (string, error) {
	encoded := make([]string, 0, len(args))
	for _, a := range args {
		buf, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encoding %s argument: %w", method, err)
		}
		encoded = append(encoded, string(buf))
	}
	return fmt.Sprintf("(%s).%s(%s)", XPathScript, method, strings.Join(encoded, ", ")), nil
}
