// Package auth handles wallet sign-in and session tokens. Login follows the
// EIP-4361 message shape signed with personal_sign; a successful verification
// mints a bearer token backed by the store.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrMalformedMessage = errors.New("auth: malformed sign-in message")
	ErrBadSignature     = errors.New("auth: signature does not recover the stated address")
	ErrWrongDomain      = errors.New("auth: message issued for another domain")
	ErrStaleMessage     = errors.New("auth: message issued too long ago")
	ErrNonceReplay      = errors.New("auth: nonce already used or never issued")
)

// SignInMessage is the parsed EIP-4361 payload.
type SignInMessage struct {
	Domain   string
	Address  string
	ChainID  int64
	Nonce    string
	IssuedAt time.Time
}

const signInHeader = " wants you to sign in with your Ethereum account:"

// ParseSignInMessage extracts the fields the server cares about. Unknown
// trailing fields are tolerated; the header, address, nonce, and issue time
// are mandatory.
func ParseSignInMessage(raw string) (*SignInMessage, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) < 2 || !strings.Contains(lines[0], signInHeader) {
		return nil, ErrMalformedMessage
	}
	msg := &SignInMessage{
		Domain:  strings.TrimSuffix(lines[0], signInHeader),
		Address: strings.TrimSpace(lines[1]),
	}
	if !common.IsHexAddress(msg.Address) {
		return nil, fmt.Errorf("%w: bad address %q", ErrMalformedMessage, msg.Address)
	}
	for _, line := range lines[2:] {
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		switch key {
		case "Chain ID":
			id, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: chain id %q", ErrMalformedMessage, value)
			}
			msg.ChainID = id
		case "Nonce":
			msg.Nonce = value
		case "Issued At":
			ts, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return nil, fmt.Errorf("%w: issued at %q", ErrMalformedMessage, value)
			}
			msg.IssuedAt = ts
		}
	}
	if msg.Nonce == "" || msg.IssuedAt.IsZero() {
		return nil, ErrMalformedMessage
	}
	return msg, nil
}

// RecoverAddress returns the wallet that produced a personal_sign signature
// over raw.
func RecoverAddress(raw string, signature string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(sig) != 65 {
		return "", ErrBadSignature
	}
	// personal_sign encodes the recovery id as 27/28.
	sig = append([]byte(nil), sig...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	digest := textHash([]byte(raw))
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", ErrBadSignature
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// textHash is the eth_sign digest: keccak256 over the prefixed text.
func textHash(data []byte) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(data), data)
	return crypto.Keccak256([]byte(prefixed))
}

// NonceIssuer hands out single-use login nonces.
type NonceIssuer struct {
	mu     sync.Mutex
	issued map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

func NewNonceIssuer(ttl time.Duration) *NonceIssuer {
	return &NonceIssuer{
		issued: make(map[string]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue returns a fresh nonce valid for the issuer's TTL.
func (n *NonceIssuer) Issue() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	nonce := hex.EncodeToString(buf)
	n.mu.Lock()
	n.issued[nonce] = n.now().Add(n.ttl)
	n.mu.Unlock()
	return nonce
}

// Consume burns a nonce; a second consume of the same nonce fails.
func (n *NonceIssuer) Consume(nonce string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	deadline, ok := n.issued[nonce]
	if !ok {
		return ErrNonceReplay
	}
	delete(n.issued, nonce)
	if n.now().After(deadline) {
		return ErrStaleMessage
	}
	return nil
}

// Prune drops expired nonces.
func (n *NonceIssuer) Prune() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	dropped := 0
	for nonce, deadline := range n.issued {
		if now.After(deadline) {
			delete(n.issued, nonce)
			dropped++
		}
	}
	return dropped
}

// VerifySignIn checks a signed message end to end: parse, domain match,
// nonce burn, freshness, and signature recovery. It returns the checksummed
// wallet address on success.
func VerifySignIn(raw, signature, domain string, nonces *NonceIssuer, maxAge time.Duration) (string, error) {
	msg, err := ParseSignInMessage(raw)
	if err != nil {
		return "", err
	}
	if msg.Domain != domain {
		return "", ErrWrongDomain
	}
	if maxAge > 0 && time.Since(msg.IssuedAt) > maxAge {
		return "", ErrStaleMessage
	}
	if err := nonces.Consume(msg.Nonce); err != nil {
		return "", err
	}
	recovered, err := RecoverAddress(raw, signature)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(recovered, msg.Address) {
		return "", ErrBadSignature
	}
	return common.HexToAddress(msg.Address).Hex(), nil
}
