package fake

import (
	"context"
	"testing"

	"github.com/AuroraCargo/CargoPort/internal/integrations/gateway"
	"github.com/stretchr/testify/require"
)

func TestFakeClient_Deterministic(t *testing.T) {
	c := New()

	init, err := c.Initialize(context.Background(), gateway.InitializeInput{Reference: "ref-1", AmountMinor: 10500})
	require.NoError(t, err)
	require.Contains(t, init.AuthorizationURL, "ref-1")

	a, err := c.Verify(context.Background(), "ref-1")
	require.NoError(t, err)
	b, err := c.Verify(context.Background(), "ref-1")
	require.NoError(t, err)
	require.Equal(t, a.Status, b.Status)
	require.NotEmpty(t, a.Status)
}
