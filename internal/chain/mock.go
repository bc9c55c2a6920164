package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"triad-arena/server/internal/money"
)

// MockGateway is a scripted Gateway for tests and dev mode. Deposits are
// registered up front; transfers succeed against an in-memory balance unless
// a failure is queued.
type MockGateway struct {
	mu          sync.Mutex
	operator    string
	deposits    map[string]*VerifiedDeposit
	depErrs     map[string]error
	balance     money.Amount
	native      string
	transfers   []MockTransfer
	sendErrs    []error
	confirmErrs []error
	seq         int
}

type MockTransfer struct {
	To     string
	Amount money.Amount
	TxHash string
}

func NewMockGateway(operator string, balance money.Amount) *MockGateway {
	return &MockGateway{
		operator: operator,
		deposits: make(map[string]*VerifiedDeposit),
		depErrs:  make(map[string]error),
		balance:  balance,
		native:   "1000000000000000000",
	}
}

var _ Gateway = (*MockGateway)(nil)

// AddDeposit registers a transaction hash the gateway will verify. An empty
// recipient matches whatever address verification asks about.
func (g *MockGateway) AddDeposit(txHash, from, to string, amount money.Amount, confirmations uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deposits[txHash] = &VerifiedDeposit{From: from, To: to, Amount: amount, Confirmations: confirmations}
}

// FailDeposit makes VerifyDeposit return err for the given hash.
func (g *MockGateway) FailDeposit(txHash string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.depErrs[txHash] = err
}

// FailNextTransfer queues an error for the next Transfer call.
func (g *MockGateway) FailNextTransfer(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sendErrs = append(g.sendErrs, err)
}

// FailNextConfirm queues an error for the next ConfirmTransfer call.
func (g *MockGateway) FailNextConfirm(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirmErrs = append(g.confirmErrs, err)
}

// SetBalance overrides the stablecoin balance.
func (g *MockGateway) SetBalance(balance money.Amount) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balance = balance
}

// Transfers returns every transfer sent so far.
func (g *MockGateway) Transfers() []MockTransfer {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]MockTransfer, len(g.transfers))
	copy(out, g.transfers)
	return out
}

func (g *MockGateway) OperatorAddress() string { return g.operator }

func (g *MockGateway) VerifyDeposit(_ context.Context, txHash, recipient string) (*VerifiedDeposit, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.depErrs[txHash]; ok {
		return nil, err
	}
	dep, ok := g.deposits[txHash]
	if !ok {
		return nil, permanentf("verify deposit", "unknown transaction %s", txHash)
	}
	if dep.To != "" && !strings.EqualFold(dep.To, recipient) {
		return nil, permanentf("verify deposit", "transaction %s carries no transfer to %s", txHash, recipient)
	}
	out := *dep
	out.To = recipient
	return &out, nil
}

func (g *MockGateway) ConfirmTransfer(_ context.Context, txHash string, _ uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.confirmErrs) > 0 {
		err := g.confirmErrs[0]
		g.confirmErrs = g.confirmErrs[1:]
		return err
	}
	for _, tr := range g.transfers {
		if tr.TxHash == txHash {
			return nil
		}
	}
	return permanentf("confirm transfer", "unknown transaction %s", txHash)
}

func (g *MockGateway) Transfer(_ context.Context, to string, amount money.Amount) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.sendErrs) > 0 {
		err := g.sendErrs[0]
		g.sendErrs = g.sendErrs[1:]
		return "", err
	}
	if amount > g.balance {
		return "", permanentf("transfer", "insufficient balance: have %s, need %s", g.balance, amount)
	}
	g.balance -= amount
	g.seq++
	txHash := fmt.Sprintf("0xmock%060d", g.seq)
	g.transfers = append(g.transfers, MockTransfer{To: to, Amount: amount, TxHash: txHash})
	return txHash, nil
}

func (g *MockGateway) StablecoinBalance(_ context.Context) (money.Amount, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance, nil
}

func (g *MockGateway) NativeBalance(_ context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.native, nil
}
