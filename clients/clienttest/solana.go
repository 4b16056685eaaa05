package clienttest

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/vitwit/payrail/clients"
	paytypes "github.com/vitwit/payrail/types"
)

// Solana is an in-memory clients.SolanaChain. Transfers succeed immediately
// and can be looked up by their signature.
type Solana struct {
	mu        sync.Mutex
	chain     paytypes.Chain
	transfers map[string]*clients.ObservedTransfer
	seq       uint64

	// SendErr, when set, is returned by the next transfer.
	SendErr error
}

var _ clients.SolanaChain = (*Solana)(nil)

func NewSolana(chain paytypes.Chain) *Solana {
	return &Solana{
		chain:     chain,
		transfers: make(map[string]*clients.ObservedTransfer),
	}
}

func (s *Solana) Chain() paytypes.Chain { return s.chain }

func (s *Solana) Close() {}

func (s *Solana) TransferNative(_ context.Context, payer solana.PrivateKey, to solana.PublicKey, lamports uint64) (solana.Signature, error) {
	return s.record(&clients.ObservedTransfer{
		Kind:        clients.TransferSystem,
		From:        payer.PublicKey(),
		Destination: to,
		Amount:      lamports,
	})
}

func (s *Solana) TransferToken(_ context.Context, payer solana.PrivateKey, mint, to solana.PublicKey, amount uint64, _ uint8) (solana.Signature, error) {
	dst, _, err := solana.FindAssociatedTokenAddress(to, mint)
	if err != nil {
		return solana.Signature{}, err
	}
	return s.record(&clients.ObservedTransfer{
		Kind:        clients.TransferToken,
		From:        payer.PublicKey(),
		Destination: dst,
		Mint:        mint,
		Amount:      amount,
	})
}

// Put stores a transfer under sig so tests can shape what Transfer returns.
func (s *Solana) Put(sig string, t *clients.ObservedTransfer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Signature = sig
	s.transfers[sig] = t
}

func (s *Solana) Transfer(_ context.Context, signature string) (*clients.ObservedTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[signature]
	if !ok {
		return nil, clients.ErrNotFound
	}
	out := *t
	return &out, nil
}

func (s *Solana) record(t *clients.ObservedTransfer) (solana.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SendErr != nil {
		err := s.SendErr
		s.SendErr = nil
		return solana.Signature{}, err
	}

	s.seq++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.seq)
	first := sha256.Sum256(buf[:])
	second := sha256.Sum256(first[:])

	var sig solana.Signature
	copy(sig[:32], first[:])
	copy(sig[32:], second[:])

	t.Signature = sig.String()
	t.Succeeded = true
	s.transfers[t.Signature] = t
	return sig, nil
}
