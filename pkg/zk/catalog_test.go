package zk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogSelectsCheapestFit(t *testing.T) {
	catalog := DefaultCatalog()

	circuit, err := catalog.Select(5, 3)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), circuit.ID, "smallest capable circuit wins")

	circuit, err = catalog.Select(40, 10)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), circuit.ID)

	circuit, err = catalog.Select(150, 80)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), circuit.ID)
}

func TestCatalogSelectNoCapacity(t *testing.T) {
	catalog := DefaultCatalog()

	_, err := catalog.Select(500, 3)
	assert.ErrorIs(t, err, ErrUnsupportedCircuit)

	_, err = catalog.Select(5, 500)
	assert.ErrorIs(t, err, ErrUnsupportedCircuit)
}

func TestCatalogSelectTieBreaksOnSmallestID(t *testing.T) {
	// Two circuits with identical capacity produce identical cost.
	catalog, err := NewCatalog([]Circuit{
		{ID: 7, MaxDataPoints: 10, MaxDataSources: 5},
		{ID: 3, MaxDataPoints: 10, MaxDataSources: 5},
	})
	require.NoError(t, err)

	circuit, err := catalog.Select(5, 3)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), circuit.ID)
}

func TestNewCatalogRejectsDuplicateIDs(t *testing.T) {
	_, err := NewCatalog([]Circuit{
		{ID: 1, MaxDataPoints: 10, MaxDataSources: 5},
		{ID: 1, MaxDataPoints: 50, MaxDataSources: 20},
	})
	assert.Error(t, err)
}

func TestCatalogGet(t *testing.T) {
	catalog := DefaultCatalog()

	circuit, err := catalog.Get(2)
	require.NoError(t, err)
	assert.Equal(t, 50, circuit.MaxDataPoints)

	_, err = catalog.Get(99)
	assert.ErrorIs(t, err, ErrUnsupportedCircuit)
}

func TestCatalogListOrdered(t *testing.T) {
	catalog := DefaultCatalog()
	circuits := catalog.List()
	require.Len(t, circuits, 3)
	assert.Equal(t, uint32(1), circuits[0].ID)
	assert.Equal(t, uint32(2), circuits[1].ID)
	assert.Equal(t, uint32(3), circuits[2].ID)
}
