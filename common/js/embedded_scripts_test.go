package js

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall(t *testing.T) {
	t.Parallel()

	expr, err := Call("clickPoint", `//a[text()="it's"]`, "", 2)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(expr, "(({"), expr[:10])
	assert.True(t, strings.HasSuffix(expr, `.clickPoint("//a[text()=\"it's\"]", "", 2)`), expr)

	_, err = Call("query", make(chan int))
	assert.ErrorContains(t, err, "encoding query argument")
}
