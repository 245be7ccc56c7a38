// Package evm implements the token registry against a Unique Network EVM
// endpoint. Every collection is exposed as an ERC-721 contract at a
// deterministic precompile address, so the adapter talks plain eth_call and
// eth_sendRawTransaction with hand-encoded calldata.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/abdulgalimov/unique-market/internal/domain"
)

// 4-byte function selectors, keccak256 of the canonical signatures.
var (
	selSupportsInterface = ethcrypto.Keccak256([]byte("supportsInterface(bytes4)"))[:4]
	selOwnerOf           = ethcrypto.Keccak256([]byte("ownerOf(uint256)"))[:4]
	selGetApproved       = ethcrypto.Keccak256([]byte("getApproved(uint256)"))[:4]
	selIsApprovedForAll  = ethcrypto.Keccak256([]byte("isApprovedForAll(address,address)"))[:4]
	selTransferFrom      = ethcrypto.Keccak256([]byte("transferFrom(address,address,uint256)"))[:4]
)

// ERC-165 interface ids.
var (
	ifaceERC721     = [4]byte{0x80, 0xac, 0x58, 0xcd}
	ifaceERC20      = [4]byte{0x36, 0x37, 0x2b, 0x07}
	ifaceRefungible = [4]byte{0x5b, 0x5e, 0x13, 0x9f}
)

const (
	// transferGasLimit covers a precompile transferFrom with headroom.
	transferGasLimit = 300_000
	// receiptPollInterval is how often Transfer polls for the mined receipt.
	receiptPollInterval = 500 * time.Millisecond
	// receiptTimeout bounds the total wait for a transfer to be mined.
	receiptTimeout = 60 * time.Second
)

// Registry is the go-ethereum backed domain.TokenRegistry. A single operator
// key signs all transfer transactions; sellers approve that operator address
// on their tokens before listing.
type Registry struct {
	client   *ethclient.Client
	chainID  *big.Int
	operator common.Address
	key      *ecdsa.PrivateKey
	logger   *slog.Logger
}

var _ domain.TokenRegistry = (*Registry)(nil)

// Dial connects to the EVM endpoint and prepares the operator signer.
func Dial(ctx context.Context, rpcURL string, chainID int64, operatorKeyHex string, logger *slog.Logger) (*Registry, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", rpcURL, err)
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(operatorKeyHex, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("evm: invalid operator key: %w", err)
	}

	r := &Registry{
		client:   client,
		chainID:  big.NewInt(chainID),
		operator: ethcrypto.PubkeyToAddress(key.PublicKey),
		key:      key,
		logger:   logger.With(slog.String("component", "evm_registry")),
	}
	r.logger.Info("connected to chain",
		slog.String("rpc_url", rpcURL),
		slog.Int64("chain_id", chainID),
		slog.String("operator", r.operator.Hex()))
	return r, nil
}

// Close releases the underlying RPC connection.
func (r *Registry) Close() {
	r.client.Close()
}

// Operator returns the address transfers are signed with.
func (r *Registry) Operator() string {
	return r.operator.Hex()
}

// CollectionExists reports whether code is deployed at the collection's
// precompile address.
func (r *Registry) CollectionExists(ctx context.Context, collectionID uint32) (bool, error) {
	code, err := r.client.CodeAt(ctx, CollectionAddress(collectionID), nil)
	if err != nil {
		return false, fmt.Errorf("evm: code at collection %d: %w", collectionID, err)
	}
	return len(code) > 0, nil
}

// CollectionKind probes the collection with ERC-165 supportsInterface.
func (r *Registry) CollectionKind(ctx context.Context, collectionID uint32) (domain.CollectionKind, error) {
	probes := []struct {
		iface [4]byte
		kind  domain.CollectionKind
	}{
		{ifaceERC721, domain.KindNFT},
		{ifaceRefungible, domain.KindRefungible},
		{ifaceERC20, domain.KindFungible},
	}
	for _, p := range probes {
		ok, err := r.supportsInterface(ctx, collectionID, p.iface)
		if err != nil {
			return domain.KindUnknown, err
		}
		if ok {
			return p.kind, nil
		}
	}
	return domain.KindUnknown, nil
}

// OwnerOf resolves the token owner. The precompile reverts for nonexistent
// tokens, which is surfaced as domain.ErrTokenNotFound.
func (r *Registry) OwnerOf(ctx context.Context, collectionID, tokenID uint32) (string, error) {
	out, err := r.call(ctx, collectionID, encodeCall(selOwnerOf, uint256Word(tokenID)))
	if err != nil {
		if isRevert(err) {
			return "", domain.ErrTokenNotFound
		}
		return "", fmt.Errorf("evm: ownerOf %d/%d: %w", collectionID, tokenID, err)
	}
	if len(out) < 32 {
		return "", fmt.Errorf("evm: ownerOf %d/%d: short return data", collectionID, tokenID)
	}
	return common.BytesToAddress(out[12:32]).Hex(), nil
}

// Allowance reports 1 when the operator is approved for the token, either
// per-token via getApproved or blanket via isApprovedForAll.
func (r *Registry) Allowance(ctx context.Context, collectionID, tokenID uint32, operator string) (uint32, error) {
	op := common.HexToAddress(operator)

	out, err := r.call(ctx, collectionID, encodeCall(selGetApproved, uint256Word(tokenID)))
	if err != nil {
		if isRevert(err) {
			return 0, domain.ErrTokenNotFound
		}
		return 0, fmt.Errorf("evm: getApproved %d/%d: %w", collectionID, tokenID, err)
	}
	if len(out) >= 32 && common.BytesToAddress(out[12:32]) == op {
		return 1, nil
	}

	owner, err := r.OwnerOf(ctx, collectionID, tokenID)
	if err != nil {
		return 0, err
	}
	out, err = r.call(ctx, collectionID, encodeCall(selIsApprovedForAll,
		addressWord(common.HexToAddress(owner)), addressWord(op)))
	if err != nil {
		return 0, fmt.Errorf("evm: isApprovedForAll %d/%d: %w", collectionID, tokenID, err)
	}
	if len(out) >= 32 && out[31] == 1 {
		return 1, nil
	}
	return 0, nil
}

// Transfer moves the token with an operator-signed transferFrom and waits
// for the transaction to be mined. A reverted receipt or a revert on
// submission is reported as a *domain.TransferError.
func (r *Registry) Transfer(ctx context.Context, collectionID, tokenID uint32, from, to string, amount uint32) error {
	key := domain.TokenKey{CollectionID: collectionID, TokenID: tokenID}
	if amount != 1 {
		return domain.NewTransferError(key, domain.ReasonRegistryRejected,
			fmt.Errorf("evm: unique token transfer amount must be 1, got %d", amount))
	}

	calldata := encodeCall(selTransferFrom,
		addressWord(common.HexToAddress(from)),
		addressWord(common.HexToAddress(to)),
		uint256Word(tokenID))

	nonce, err := r.client.PendingNonceAt(ctx, r.operator)
	if err != nil {
		return domain.NewTransferError(key, domain.ReasonRegistryRejected,
			fmt.Errorf("evm: pending nonce: %w", err))
	}
	gasPrice, err := r.client.SuggestGasPrice(ctx)
	if err != nil {
		return domain.NewTransferError(key, domain.ReasonRegistryRejected,
			fmt.Errorf("evm: suggest gas price: %w", err))
	}

	contract := CollectionAddress(collectionID)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &contract,
		Gas:      transferGasLimit,
		GasPrice: gasPrice,
		Data:     calldata,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(r.chainID), r.key)
	if err != nil {
		return domain.NewTransferError(key, domain.ReasonRegistryRejected,
			fmt.Errorf("evm: sign transfer: %w", err))
	}

	if err := r.client.SendTransaction(ctx, signed); err != nil {
		reason := domain.ReasonRegistryRejected
		if isRevert(err) {
			reason = domain.ReasonApprovedValueTooLow
		}
		return domain.NewTransferError(key, reason, fmt.Errorf("evm: send transfer: %w", err))
	}

	r.logger.Info("transfer submitted",
		slog.String("token", key.String()),
		slog.String("tx_hash", signed.Hash().Hex()),
		slog.String("from", from),
		slog.String("to", to))

	receipt, err := r.waitMined(ctx, signed.Hash())
	if err != nil {
		return domain.NewTransferError(key, domain.ReasonRegistryRejected,
			fmt.Errorf("evm: wait for transfer receipt: %w", err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return domain.NewTransferError(key, domain.ReasonApprovedValueTooLow,
			fmt.Errorf("evm: transfer %s reverted", signed.Hash().Hex()))
	}
	return nil
}

// waitMined polls until the receipt is available or the deadline passes.
func (r *Registry) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()
	for {
		receipt, err := r.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Registry) supportsInterface(ctx context.Context, collectionID uint32, iface [4]byte) (bool, error) {
	arg := make([]byte, 32)
	copy(arg, iface[:])
	out, err := r.call(ctx, collectionID, encodeCall(selSupportsInterface, arg))
	if err != nil {
		// Contracts without ERC-165 revert on the probe itself.
		if isRevert(err) {
			return false, nil
		}
		return false, fmt.Errorf("evm: supportsInterface collection %d: %w", collectionID, err)
	}
	return len(out) >= 32 && out[31] == 1, nil
}

func (r *Registry) call(ctx context.Context, collectionID uint32, data []byte) ([]byte, error) {
	contract := CollectionAddress(collectionID)
	return r.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
}

// encodeCall concatenates a selector with 32-byte-aligned argument words.
func encodeCall(selector []byte, words ...[]byte) []byte {
	data := make([]byte, 0, 4+32*len(words))
	data = append(data, selector...)
	for _, w := range words {
		data = append(data, w...)
	}
	return data
}

func uint256Word(v uint32) []byte {
	return common.LeftPadBytes(new(big.Int).SetUint64(uint64(v)).Bytes(), 32)
}

func addressWord(addr common.Address) []byte {
	return common.LeftPadBytes(addr.Bytes(), 32)
}

// isRevert matches the error shapes RPC nodes use for reverted calls.
func isRevert(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "revert") || strings.Contains(msg, "execution error")
}
