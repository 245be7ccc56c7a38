package evm

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionAddress(t *testing.T) {
	assert.Equal(t,
		common.HexToAddress("0x17C4e6453cC49AAAaEACa894E6D9683e000000F4"),
		CollectionAddress(244),
	)
	assert.Equal(t,
		common.HexToAddress("0x17C4e6453cC49AAAaEACa894e6D9683E00000001"),
		CollectionAddress(1),
	)
}

func TestCollectionIDFromAddress(t *testing.T) {
	id, ok := CollectionIDFromAddress(CollectionAddress(244))
	require.True(t, ok)
	assert.Equal(t, uint32(244), id)

	_, ok = CollectionIDFromAddress(common.HexToAddress("0x1111111111111111111111111111111111111111"))
	assert.False(t, ok)
}
