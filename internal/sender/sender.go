// Package sender turns engine plans into signed liquidator transactions and
// broadcasts them, publicly or through a private relay.
package sender

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/engine"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/fuse"
)

var (
	ErrNoKey          = errors.New("sender: private key required")
	ErrEstimateFailed = errors.New("sender: gas estimation failed")
	ErrReverted       = errors.New("sender: transaction reverted")
)

// Backend is the node connection a Sender needs. *chain.Client satisfies it.
type Backend interface {
	bind.DeployBackend
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Broadcaster submits a signed transaction.
type Broadcaster interface {
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

type Options struct {
	ChainID    *big.Int
	Liquidator common.Address
	Key        *ecdsa.PrivateKey
	// Relay, when set, receives signed transactions instead of the backend.
	Relay Broadcaster
	// DryRun signs nothing and only logs the plan.
	DryRun      bool
	WaitTimeout time.Duration
}

// Result describes one submitted (or dry-run) liquidation.
type Result struct {
	Hash     common.Hash    `json:"hash"`
	From     common.Address `json:"from"`
	Nonce    uint64         `json:"nonce"`
	GasLimit uint64         `json:"gasLimit"`
	GasPrice *big.Int       `json:"gasPrice"`
	Private  bool           `json:"private,omitempty"`
	DryRun   bool           `json:"dryRun,omitempty"`
	Receipt  *types.Receipt `json:"-"`
}

type Sender struct {
	backend Backend
	opts    Options
	from    common.Address
}

func New(backend Backend, opts Options) (*Sender, error) {
	if backend == nil {
		return nil, errors.New("sender: backend required")
	}
	if opts.Liquidator == (common.Address{}) {
		return nil, errors.New("sender: liquidator address required")
	}
	s := &Sender{backend: backend, opts: opts}
	if opts.Key != nil {
		s.from = crypto.PubkeyToAddress(opts.Key.PublicKey)
	} else if !opts.DryRun {
		return nil, ErrNoKey
	}
	if !opts.DryRun && (opts.ChainID == nil || opts.ChainID.Sign() <= 0) {
		return nil, errors.New("sender: chain id required")
	}
	return s, nil
}

// From is the signing account, zero in key-less dry-run mode.
func (s *Sender) From() common.Address { return s.from }

// Send packs, estimates, signs and broadcasts plan. The gas estimate here is
// taken again against the pending state and, unlike the engine's, a failure
// aborts the send.
func (s *Sender) Send(ctx context.Context, plan *engine.Plan) (Result, error) {
	if plan == nil {
		return Result{}, errors.New("sender: nil plan")
	}
	data, err := fuse.PackCall(plan.Method, plan.Args)
	if err != nil {
		return Result{}, fmt.Errorf("pack %s: %w", fuse.MethodName(plan.Method), err)
	}
	value := plan.Value
	if value == nil {
		value = new(big.Int)
	}

	if s.opts.DryRun {
		log.Printf("[liq] dry-run borrower=%s method=%s value=%s gas=%d calldata=%d bytes",
			plan.Borrower.Hex(), fuse.MethodName(plan.Method), value, plan.GasLimit, len(data))
		return Result{From: s.from, GasLimit: plan.GasLimit, GasPrice: plan.GasPrice, DryRun: true}, nil
	}

	res, err := s.Transact(ctx, s.opts.Liquidator, value, data, plan.GasPrice)
	if res.Hash != (common.Hash{}) {
		log.Printf("[liq] sent borrower=%s method=%s tx=%s nonce=%d gas=%d private=%t",
			plan.Borrower.Hex(), fuse.MethodName(plan.Method), res.Hash.Hex(), res.Nonce, res.GasLimit, res.Private)
	}
	return res, err
}

// Transact estimates, signs and broadcasts a call to to, then waits for the
// receipt when a wait timeout is configured. A nil or zero gasPrice uses the
// node's suggestion.
func (s *Sender) Transact(ctx context.Context, to common.Address, value *big.Int, data []byte, gasPrice *big.Int) (Result, error) {
	if s.opts.Key == nil {
		return Result{}, ErrNoKey
	}
	if value == nil {
		value = new(big.Int)
	}
	gasLimit, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: s.from, To: &to, Value: value, Data: data})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrEstimateFailed, err)
	}

	if gasPrice == nil || gasPrice.Sign() == 0 {
		gasPrice, err = s.backend.SuggestGasPrice(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("gas price: %w", err)
		}
	}

	nonce, err := s.backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return Result{}, fmt.Errorf("nonce: %w", err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(s.opts.Key, s.opts.ChainID)
	if err != nil {
		return Result{}, err
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signed, err := opts.Signer(opts.From, tx)
	if err != nil {
		return Result{}, fmt.Errorf("sign: %w", err)
	}

	var broadcaster Broadcaster = s.backend
	if s.opts.Relay != nil {
		broadcaster = s.opts.Relay
	}
	if err := broadcaster.SendTransaction(ctx, signed); err != nil {
		return Result{}, fmt.Errorf("broadcast: %w", err)
	}

	res := Result{
		Hash:     signed.Hash(),
		From:     s.from,
		Nonce:    nonce,
		GasLimit: gasLimit,
		GasPrice: gasPrice,
		Private:  s.opts.Relay != nil,
	}
	if s.opts.WaitTimeout <= 0 {
		return res, nil
	}
	receipt, err := waitForReceipt(ctx, s.backend, signed, s.opts.WaitTimeout)
	if err != nil {
		return res, fmt.Errorf("wait %s: %w", res.Hash.Hex(), err)
	}
	res.Receipt = receipt
	if receipt.Status != types.ReceiptStatusSuccessful {
		return res, fmt.Errorf("%w: %s", ErrReverted, res.Hash.Hex())
	}
	return res, nil
}

func waitForReceipt(ctx context.Context, b bind.DeployBackend, tx *types.Transaction, timeout time.Duration) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return bind.WaitMined(waitCtx, b, tx)
}
