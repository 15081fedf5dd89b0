package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Named(t *testing.T) {
	lggr := Test(t)
	assert.Equal(t, "", lggr.Name())

	named := lggr.Named("Bridge").Named("Dispatcher")
	assert.Equal(t, "Bridge.Dispatcher", named.Name())

	// With keeps the name
	assert.Equal(t, "Bridge.Dispatcher", named.With("key", "value").Name())

	assert.Equal(t, "Poller", Named(nil, "Poller").Name())
}

func TestLogger_New(t *testing.T) {
	for _, cfg := range []Config{{}, {Debug: true}, {JSONConsole: true}} {
		lggr, err := New(cfg)
		require.NoError(t, err)
		lggr.Infow("hello", "cfg", cfg)
		lggr.Criticalw("critical message")
	}
}
