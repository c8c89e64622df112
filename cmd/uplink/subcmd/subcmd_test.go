package subcmd

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/uplink/internal/state"
)

func TestParse(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, *state.Config) error { return nil }
	mods := []Mod{{Name: "run", Main: noop}, {Name: "sim", Main: noop}}

	m, err := Parse("sim", mods)
	require.NoError(t, err)
	assert.Equal(t, "sim", m.Name)

	_, err = Parse("", mods)
	require.Error(t, err)
	assert.True(t, errors.IsNotValid(err))

	_, err = Parse("bogus", mods)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Contains(t, err.Error(), "run,sim")

	assert.Panics(t, func() { _, _ = Parse("x", []Mod{{Main: noop}}) })
}
