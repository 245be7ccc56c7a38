package evm

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// collectionAddressPrefix is the 16-byte prefix of the precompiled contract
// address every Unique Network collection is reachable at. The remaining
// 4 bytes are the big-endian collection id.
var collectionAddressPrefix = [16]byte{
	0x17, 0xC4, 0xE6, 0x45, 0x3C, 0xC4, 0x9A, 0xAA,
	0xAE, 0xAC, 0xA8, 0x94, 0xE6, 0xD9, 0x68, 0x3E,
}

// CollectionAddress maps a collection id to its on-chain contract address.
func CollectionAddress(collectionID uint32) common.Address {
	var addr common.Address
	copy(addr[:], collectionAddressPrefix[:])
	binary.BigEndian.PutUint32(addr[16:], collectionID)
	return addr
}

// CollectionIDFromAddress is the inverse of CollectionAddress. The second
// return value reports whether the address carries the collection prefix.
func CollectionIDFromAddress(addr common.Address) (uint32, bool) {
	for i, b := range collectionAddressPrefix {
		if addr[i] != b {
			return 0, false
		}
	}
	return binary.BigEndian.Uint32(addr[16:]), true
}
