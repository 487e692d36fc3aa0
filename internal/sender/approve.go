package sender

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/chain"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/position"
)

type AllowanceReader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// Approve grants the liquidator an unlimited allowance on every token whose
// current allowance has fallen below half of that. The native currency needs
// no approval and is skipped.
func (s *Sender) Approve(ctx context.Context, reader AllowanceReader, tokens []common.Address) ([]Result, error) {
	spender := s.opts.Liquidator
	var out []Result
	for _, token := range tokens {
		if position.IsNative(token) {
			continue
		}
		allowance, err := reader.Allowance(ctx, token, s.from, spender)
		if err != nil {
			return out, err
		}
		if !chain.NeedsApproval(allowance) {
			log.Printf("[info] %s: allowance for %s already set", token.Hex(), spender.Hex())
			continue
		}
		if s.opts.DryRun {
			log.Printf("[info] dry-run: would approve %s for %s", token.Hex(), spender.Hex())
			out = append(out, Result{From: s.from, DryRun: true})
			continue
		}
		res, err := s.Transact(ctx, token, nil, chain.ApproveData(spender, chain.MaxUint256()), nil)
		if err != nil {
			return out, fmt.Errorf("approve %s: %w", token.Hex(), err)
		}
		log.Printf("[info] approved %s for %s tx=%s", token.Hex(), spender.Hex(), res.Hash.Hex())
		out = append(out, res)
	}
	return out, nil
}
