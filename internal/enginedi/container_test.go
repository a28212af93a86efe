package enginedi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"agentmem/internal/adapters/memstore"
)

func TestBuild_RequiresStore(t *testing.T) {
	_, err := Build(context.Background(), Options{})
	require.Error(t, err)
}

func TestBuild_WiresFacadeWithDefaults(t *testing.T) {
	c, err := Build(context.Background(), Options{Store: memstore.New()})
	require.NoError(t, err)
	require.NotNil(t, c.Facade)
	require.NotNil(t, c.Logger)
	require.Nil(t, c.Metrics) // no registry supplied
	require.Nil(t, c.Tracer)  // no tracing endpoint supplied

	require.NoError(t, c.Close(context.Background()))
}
