package helpers

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFoldErrors(t *testing.T) {
	t.Parallel()

	assert.NoError(t, FoldErrors(nil))
	assert.NoError(t, FoldErrors([]error{nil, nil}))
	e1 := fmt.Errorf("psm rejected")
	assert.Equal(t, e1, FoldErrors([]error{nil, e1}))
	err := FoldErrors([]error{e1, fmt.Errorf("edrx rejected")})
	assert.EqualError(t, err, "psm rejected\nedrx rejected")
}
