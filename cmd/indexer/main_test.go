package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistrations_BuildsWithoutError(t *testing.T) {
	deps, err := registrations()
	require.NoError(t, err)
	require.NotNil(t, deps.Bindings)
	require.NotNil(t, deps.Registry)
}
