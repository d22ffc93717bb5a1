package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/relay_layer/internal/entityid"
)

func mustID(t *testing.T, s string) entityid.ID {
	t.Helper()
	id, err := entityid.Parse(s)
	require.NoError(t, err)
	return id
}
