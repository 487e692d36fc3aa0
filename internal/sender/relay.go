package sender

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// Relay submits raw transactions to a private endpoint that keeps them out of
// the public mempool.
type Relay struct {
	rpc *rpc.Client
	url string
}

func DialRelay(ctx context.Context, url string) (*Relay, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	return &Relay{rpc: c, url: url}, nil
}

func (r *Relay) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return err
	}
	var hash common.Hash
	if err := r.rpc.CallContext(ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(raw)); err != nil {
		return fmt.Errorf("relay %s: %w", r.url, err)
	}
	if hash != tx.Hash() {
		return fmt.Errorf("relay %s: returned hash %s for %s", r.url, hash.Hex(), tx.Hash().Hex())
	}
	return nil
}

func (r *Relay) Close() {
	if r != nil && r.rpc != nil {
		r.rpc.Close()
	}
}
