package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"triad-arena/server/internal/money"
)

// ERC-20 ABI fragments, hand-packed. The token surface we need is tiny
// enough that generated bindings would be overkill.
var (
	transferSelector  = common.Hex2Bytes("a9059cbb") // transfer(address,uint256)
	balanceOfSelector = common.Hex2Bytes("70a08231") // balanceOf(address)
	transferTopic     = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
)

const transferGasLimit = 100_000

// EVMGateway settles against an ERC-20 stablecoin over JSON-RPC.
type EVMGateway struct {
	client   *ethclient.Client
	key      *ecdsa.PrivateKey
	operator common.Address
	token    common.Address
	chainID  *big.Int
	deadline time.Duration

	// Transfers are serialized so nonce allocation stays monotonic.
	sendMu sync.Mutex
}

// EVMConfig carries the connection parameters for DialEVM.
type EVMConfig struct {
	RPCEndpoint  string
	TokenAddress string
	OperatorKey  string
	ChainID      int64
	Deadline     time.Duration
}

// DialEVM connects to the RPC endpoint and verifies the configured chain id.
func DialEVM(ctx context.Context, cfg EVMConfig) (*EVMGateway, error) {
	if !common.IsHexAddress(cfg.TokenAddress) {
		return nil, fmt.Errorf("chain: malformed token address %q", cfg.TokenAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: operator key: %w", err)
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCEndpoint, err)
	}
	remote, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain: read chain id: %w", err)
	}
	if remote.Int64() != cfg.ChainID {
		client.Close()
		return nil, fmt.Errorf("chain: endpoint serves chain %d, configured %d", remote.Int64(), cfg.ChainID)
	}
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	return &EVMGateway{
		client:   client,
		key:      key,
		operator: crypto.PubkeyToAddress(key.PublicKey),
		token:    common.HexToAddress(cfg.TokenAddress),
		chainID:  big.NewInt(cfg.ChainID),
		deadline: deadline,
	}, nil
}

func (g *EVMGateway) Close() { g.client.Close() }

func (g *EVMGateway) OperatorAddress() string {
	return g.operator.Hex()
}

func (g *EVMGateway) VerifyDeposit(ctx context.Context, txHash, recipient string) (*VerifiedDeposit, error) {
	ctx, cancel := context.WithTimeout(ctx, g.deadline)
	defer cancel()

	if len(txHash) != 66 || !strings.HasPrefix(txHash, "0x") {
		return nil, permanentf("verify deposit", "malformed transaction hash %q", txHash)
	}
	if !common.IsHexAddress(recipient) {
		return nil, permanentf("verify deposit", "malformed recipient %q", recipient)
	}
	hash := common.HexToHash(txHash)
	to := common.HexToAddress(recipient)

	receipt, err := g.client.TransactionReceipt(ctx, hash)
	if err != nil {
		// Not mined yet is a retryable condition, not a rejection.
		if errors.Is(err, ethereum.NotFound) {
			return nil, transientf("verify deposit", fmt.Errorf("transaction %s not mined", txHash))
		}
		return nil, transientf("verify deposit", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, permanentf("verify deposit", "transaction %s reverted", txHash)
	}

	from, amount, ok := g.findTransfer(receipt.Logs, to)
	if !ok {
		return nil, permanentf("verify deposit", "transaction %s carries no stablecoin transfer to %s", txHash, to.Hex())
	}
	parsed, err := money.FromBigInt(amount)
	if err != nil {
		return nil, permanentf("verify deposit", "transfer amount out of range: %v", err)
	}

	confirmations, err := g.confirmations(ctx, receipt)
	if err != nil {
		return nil, transientf("verify deposit", err)
	}
	return &VerifiedDeposit{
		From:          from.Hex(),
		To:            to.Hex(),
		Amount:        parsed,
		Confirmations: confirmations,
	}, nil
}

// ConfirmTransfer reports whether an outbound transfer has landed under the
// required confirmations. Pending and shallow transactions come back
// transient so the settlement pipeline polls again.
func (g *EVMGateway) ConfirmTransfer(ctx context.Context, txHash string, minConfirmations uint64) error {
	ctx, cancel := context.WithTimeout(ctx, g.deadline)
	defer cancel()

	receipt, err := g.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return transientf("confirm transfer", fmt.Errorf("transaction %s not mined", txHash))
		}
		return transientf("confirm transfer", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return permanentf("confirm transfer", "transaction %s reverted", txHash)
	}
	confirmations, err := g.confirmations(ctx, receipt)
	if err != nil {
		return transientf("confirm transfer", err)
	}
	if confirmations < minConfirmations {
		return transientf("confirm transfer", fmt.Errorf("transaction %s at %d of %d confirmations", txHash, confirmations, minConfirmations))
	}
	return nil
}

func (g *EVMGateway) confirmations(ctx context.Context, receipt *types.Receipt) (uint64, error) {
	head, err := g.client.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	if mined := receipt.BlockNumber.Uint64(); head >= mined {
		return head - mined + 1, nil
	}
	return 0, nil
}

func (g *EVMGateway) findTransfer(logs []*types.Log, recipient common.Address) (common.Address, *big.Int, bool) {
	for _, entry := range logs {
		if entry.Address != g.token || len(entry.Topics) != 3 {
			continue
		}
		if entry.Topics[0] != transferTopic {
			continue
		}
		if common.BytesToAddress(entry.Topics[2].Bytes()) != recipient {
			continue
		}
		from := common.BytesToAddress(entry.Topics[1].Bytes())
		return from, new(big.Int).SetBytes(entry.Data), true
	}
	return common.Address{}, nil, false
}

func (g *EVMGateway) Transfer(ctx context.Context, to string, amount money.Amount) (string, error) {
	if !common.IsHexAddress(to) {
		return "", permanentf("transfer", "malformed recipient %q", to)
	}
	if amount <= 0 {
		return "", permanentf("transfer", "non-positive amount %s", amount)
	}

	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, g.deadline)
	defer cancel()

	nonce, err := g.client.PendingNonceAt(ctx, g.operator)
	if err != nil {
		return "", transientf("transfer", err)
	}
	gasPrice, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", transientf("transfer", err)
	}

	data := packTransfer(common.HexToAddress(to), amount.BigInt())
	tx := types.NewTransaction(nonce, g.token, big.NewInt(0), transferGasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(g.chainID), g.key)
	if err != nil {
		return "", permanentf("transfer", "sign: %v", err)
	}
	if err := g.client.SendTransaction(ctx, signed); err != nil {
		return "", transientf("transfer", err)
	}
	return signed.Hash().Hex(), nil
}

func (g *EVMGateway) StablecoinBalance(ctx context.Context) (money.Amount, error) {
	ctx, cancel := context.WithTimeout(ctx, g.deadline)
	defer cancel()

	data := make([]byte, 0, 36)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(g.operator.Bytes(), 32)...)
	out, err := g.client.CallContract(ctx, ethereum.CallMsg{To: &g.token, Data: data}, nil)
	if err != nil {
		return 0, transientf("stablecoin balance", err)
	}
	amount, err := money.FromBigInt(new(big.Int).SetBytes(out))
	if err != nil {
		return 0, permanentf("stablecoin balance", "out of range: %v", err)
	}
	return amount, nil
}

func (g *EVMGateway) NativeBalance(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.deadline)
	defer cancel()

	wei, err := g.client.BalanceAt(ctx, g.operator, nil)
	if err != nil {
		return "", transientf("native balance", err)
	}
	return wei.String(), nil
}

func packTransfer(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 68)
	data = append(data, transferSelector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}
