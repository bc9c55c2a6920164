// Package chain talks to the settlement network. The Gateway hides the RPC
// surface behind three operations the rest of the server needs: verifying an
// entry deposit, sending a stablecoin transfer, and reading balances.
package chain

import (
	"context"
	"errors"
	"fmt"

	"triad-arena/server/internal/money"
)

// ErrorKind classifies a failed chain operation for the retry policy.
type ErrorKind int

const (
	// KindTransient covers RPC connectivity, timeouts, and nonce races.
	// The settlement pipeline retries these with backoff.
	KindTransient ErrorKind = iota
	// KindPermanent covers reverted transactions, malformed inputs, and
	// deposits that can never confirm. Retrying is pointless.
	KindPermanent
)

// Error wraps a chain failure with its retry classification.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("chain: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether err is a chain error worth retrying.
func Transient(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == KindTransient
}

func transientf(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

func permanentf(op, format string, args ...any) *Error {
	return &Error{Kind: KindPermanent, Op: op, Err: fmt.Errorf(format, args...)}
}

// VerifiedDeposit is the on-chain view of an entry payment.
type VerifiedDeposit struct {
	From          string
	To            string
	Amount        money.Amount
	Confirmations uint64
}

// Gateway is the settlement-network interface. The EVM implementation backs
// production; the mock backs tests and dev mode.
type Gateway interface {
	// VerifyDeposit inspects a transaction hash and returns the stablecoin
	// transfer it carried to the recipient address (a lobby's deposit
	// address). A permanent Error means the transaction can never count as
	// a valid deposit for that recipient; a transient one means try again
	// later (not yet mined, RPC trouble).
	VerifyDeposit(ctx context.Context, txHash, recipient string) (*VerifiedDeposit, error)

	// Transfer sends amount of the stablecoin from the operator wallet and
	// returns the transaction hash once it is accepted by the node.
	Transfer(ctx context.Context, to string, amount money.Amount) (string, error)

	// ConfirmTransfer checks whether a previously submitted transfer is
	// buried under minConfirmations blocks. Nil means confirmed; a
	// transient Error means check again later; a permanent one means the
	// transaction reverted and the funds never moved.
	ConfirmTransfer(ctx context.Context, txHash string, minConfirmations uint64) error

	// StablecoinBalance reads the operator wallet's token balance.
	StablecoinBalance(ctx context.Context) (money.Amount, error)

	// NativeBalance reads the operator wallet's gas balance in wei.
	NativeBalance(ctx context.Context) (string, error)

	// OperatorAddress is the wallet deposits must be sent to.
	OperatorAddress() string
}
