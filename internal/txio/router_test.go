package txio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbryio/lbry-sync/pkg/models"
)

func TestRouteDispatchesByType(t *testing.T) {
	r := New()
	r.Register(models.TXOType(1), func(_ context.Context, txo models.TXO) (any, error) {
		return "channel:" + txo.TxHash.Hex(), nil
	})
	r.Register(models.TXOType(2), func(_ context.Context, txo models.TXO) (any, error) {
		return "support", nil
	})

	assert.True(t, r.HasBuilder(models.TXOType(1)))
	assert.False(t, r.HasBuilder(models.TXOType(9)))

	payload, err := r.Route(context.Background(), models.TXO{Type: models.TXOType(2)})
	require.NoError(t, err)
	assert.Equal(t, "support", payload)
}

func TestRouteUnregisteredTypeReturnsNil(t *testing.T) {
	r := New()
	payload, err := r.Route(context.Background(), models.TXO{Type: models.TXOType(99)})
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestRouteWrapsBuilderError(t *testing.T) {
	r := New()
	boom := errors.New("boom")
	r.Register(models.TXOType(1), func(_ context.Context, _ models.TXO) (any, error) {
		return nil, boom
	})

	_, err := r.Route(context.Background(), models.TXO{Type: models.TXOType(1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
