package sender

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/engine"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/fuse"
)

type gasBackend interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Estimator prices candidate liquidator calls for the engine.
type Estimator struct {
	backend    gasBackend
	from       common.Address
	liquidator common.Address
}

var _ engine.GasOracle = (*Estimator)(nil)

func NewEstimator(backend gasBackend, from, liquidator common.Address) *Estimator {
	return &Estimator{backend: backend, from: from, liquidator: liquidator}
}

func (e *Estimator) EstimateGas(ctx context.Context, call engine.CallSpec) (uint64, error) {
	data, err := fuse.PackCall(call.Method, call.Args)
	if err != nil {
		return 0, err
	}
	to := e.liquidator
	return e.backend.EstimateGas(ctx, ethereum.CallMsg{From: e.from, To: &to, Value: call.Value, Data: data})
}

func (e *Estimator) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return e.backend.SuggestGasPrice(ctx)
}
