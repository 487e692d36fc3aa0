// Package runner drives one evaluation pass: fetch at-risk positions, evaluate
// every borrower, and hand accepted plans to the sender.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/decisionlog"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/engine"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/fuse"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/metrics"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/position"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/sender"
)

// PositionSource lists liquidatable borrowers grouped by pool.
type PositionSource interface {
	LiquidatablePositions(ctx context.Context, filter fuse.Filter) ([]position.PoolPositions, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, b position.Borrower, pool position.Pool) (engine.Outcome, error)
}

type Submitter interface {
	Send(ctx context.Context, plan *engine.Plan) (sender.Result, error)
}

type Options struct {
	Filter fuse.Filter
	// Concurrency bounds how many pools are evaluated at once. Borrowers within
	// a pool are evaluated in order.
	Concurrency int
	// Timeout bounds a whole pass; zero means none.
	Timeout time.Duration
	Log     *decisionlog.Writer
}

// Planned is an accepted liquidation and, when a submitter is configured, the
// result of sending it.
type Planned struct {
	Comptroller string         `json:"comptroller"`
	Plan        *engine.Plan   `json:"plan"`
	Result      *sender.Result `json:"result,omitempty"`
	SendError   string         `json:"sendError,omitempty"`
}

// Report summarizes a pass.
type Report struct {
	PassID    string        `json:"passId"`
	Started   time.Time     `json:"started"`
	Elapsed   time.Duration `json:"elapsed"`
	Pools     int           `json:"pools"`
	Borrowers int           `json:"borrowers"`
	Vetoes    int           `json:"vetoes"`
	Skips     int           `json:"skips"`
	Errors    int           `json:"errors"`
	Sent      int           `json:"sent"`
	Planned   []Planned     `json:"planned"`
}

type Runner struct {
	source PositionSource
	eval   Evaluator
	submit Submitter
	opts   Options

	sendMu sync.Mutex

	mu   sync.RWMutex
	last *Report
}

// New builds a runner. submit may be nil, in which case plans are only
// reported.
func New(source PositionSource, eval Evaluator, submit Submitter, opts Options) (*Runner, error) {
	if source == nil || eval == nil {
		return nil, errors.New("runner: position source and evaluator are required")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Runner{source: source, eval: eval, submit: submit, opts: opts}, nil
}

// Last returns the most recent completed report, or nil.
func (r *Runner) Last() *Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Pass evaluates every liquidatable borrower once. A failure for one borrower
// is logged and counted; only a position-source failure or cancellation fails
// the pass.
func (r *Runner) Pass(ctx context.Context) (*Report, error) {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	rep := &Report{PassID: decisionlog.NewPassID(), Started: time.Now()}
	pools, err := r.source.LiquidatablePositions(ctx, r.opts.Filter)
	if err != nil {
		r.record(decisionlog.Record{Kind: decisionlog.KindError, PassID: rep.PassID, Error: err.Error()})
		return nil, fmt.Errorf("positions: %w", err)
	}
	rep.Pools = len(pools)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for _, pp := range pools {
		g.Go(func() error {
			res := r.evaluatePool(ctx, rep.PassID, pp)
			mu.Lock()
			rep.Borrowers += res.Borrowers
			rep.Vetoes += res.Vetoes
			rep.Skips += res.Skips
			rep.Errors += res.Errors
			rep.Sent += res.Sent
			rep.Planned = append(rep.Planned, res.Planned...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	rep.Elapsed = time.Since(rep.Started)
	metrics.ObservePass(rep.Elapsed, rep.Borrowers, time.Now())
	r.record(decisionlog.Record{
		Kind:      decisionlog.KindPass,
		PassID:    rep.PassID,
		Pools:     rep.Pools,
		Borrowers: rep.Borrowers,
		Plans:     len(rep.Planned),
		Errors:    rep.Errors,
		ElapsedMS: rep.Elapsed.Milliseconds(),
	})
	log.Printf("[liq] pass=%s pools=%d borrowers=%d plans=%d vetoes=%d skips=%d errors=%d sent=%d elapsed=%s",
		rep.PassID, rep.Pools, rep.Borrowers, len(rep.Planned), rep.Vetoes, rep.Skips, rep.Errors, rep.Sent, rep.Elapsed.Round(time.Millisecond))

	r.mu.Lock()
	r.last = rep
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	return rep, nil
}

func (r *Runner) evaluatePool(ctx context.Context, passID string, pp position.PoolPositions) Report {
	var res Report
	comptroller := pp.Pool.Comptroller.Hex()
	if pp.Dropped > 0 {
		res.Errors += pp.Dropped
		metrics.Evaluations.WithLabelValues(metrics.ResultError).Add(float64(pp.Dropped))
		r.record(decisionlog.Record{
			Kind:        decisionlog.KindError,
			PassID:      passID,
			Comptroller: comptroller,
			Error:       fmt.Sprintf("%d borrower records could not be decoded", pp.Dropped),
		})
	}
	for _, b := range pp.Borrowers {
		if ctx.Err() != nil {
			return res
		}
		res.Borrowers++

		out, err := r.eval.Evaluate(ctx, b, pp.Pool)
		base := decisionlog.Record{
			PassID:      passID,
			Comptroller: comptroller,
			Borrower:    b.Account.Hex(),
			Stage:       string(out.Reached),
		}
		switch {
		case err != nil:
			res.Errors++
			metrics.Evaluations.WithLabelValues(metrics.ResultError).Inc()
			log.Printf("[warn] pool=%s borrower=%s: %v", comptroller, b.Account.Hex(), err)
			base.Kind = decisionlog.KindError
			base.Error = err.Error()
			r.record(base)

		case out.Plan == nil:
			kind, result := decisionlog.KindSkip, metrics.ResultSkip
			if out.Reason.Veto() {
				kind, result = decisionlog.KindVeto, metrics.ResultVeto
				res.Vetoes++
			} else {
				res.Skips++
			}
			metrics.Evaluations.WithLabelValues(result).Inc()
			metrics.Rejections.WithLabelValues(string(out.Reason)).Inc()
			base.Kind = kind
			base.Reason = string(out.Reason)
			if out.Sizing != nil {
				base.RepayAmount = out.Sizing.RepayAmount.Dec()
				base.SeizeAmount = out.Sizing.SeizeAmount.Dec()
			}
			if out.Decision != nil && out.Decision.MinOutput != nil {
				base.MinOutput = out.Decision.MinOutput.Dec()
			}
			r.record(base)

		default:
			metrics.Evaluations.WithLabelValues(metrics.ResultPlan).Inc()
			if out.Plan.EstimationFailed {
				metrics.EstimationFallbacks.Inc()
			}
			r.record(planRecord(base, out.Plan))

			p := Planned{Comptroller: comptroller, Plan: out.Plan}
			if r.submit != nil {
				if sent := r.send(ctx, passID, &p); sent {
					res.Sent++
				}
			}
			res.Planned = append(res.Planned, p)
		}
	}
	return res
}

// send serializes submissions so pending nonces are not reused across pools.
func (r *Runner) send(ctx context.Context, passID string, p *Planned) bool {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	result, err := r.submit.Send(ctx, p.Plan)
	rec := decisionlog.Record{
		Kind:        decisionlog.KindSent,
		PassID:      passID,
		Comptroller: p.Comptroller,
		Borrower:    p.Plan.Borrower.Hex(),
		Method:      p.Plan.Method,
	}
	if result.Hash != (common.Hash{}) || result.DryRun {
		p.Result = &result
		rec.Tx = result.Hash.Hex()
		rec.DryRun = result.DryRun
		rec.GasLimit = result.GasLimit
	}
	if err != nil {
		status := metrics.TxFailed
		if errors.Is(err, sender.ErrReverted) {
			status = metrics.TxReverted
		}
		metrics.Transactions.WithLabelValues(status).Inc()
		log.Printf("[warn] send borrower=%s: %v", p.Plan.Borrower.Hex(), err)
		p.SendError = err.Error()
		rec.Kind = decisionlog.KindError
		rec.Error = err.Error()
		r.record(rec)
		return false
	}
	if result.DryRun {
		metrics.Transactions.WithLabelValues(metrics.TxDryRun).Inc()
	} else {
		metrics.Transactions.WithLabelValues(metrics.TxSent).Inc()
	}
	r.record(rec)
	return !result.DryRun
}

func planRecord(base decisionlog.Record, p *engine.Plan) decisionlog.Record {
	base.Kind = decisionlog.KindPlan
	base.Method = p.Method
	base.DebtMarket = p.DebtMarket.Hex()
	base.CollateralMarket = p.CollateralMarket.Hex()
	base.OutputToken = p.OutputToken.Hex()
	base.GasLimit = p.GasLimit
	base.EstimationFailed = p.EstimationFailed
	base.Strategies = len(p.Redemption.StrategyAddresses())
	if p.GasPrice != nil {
		base.GasPrice = p.GasPrice.String()
	}
	if p.Sizing.RepayAmount != nil {
		base.RepayAmount = p.Sizing.RepayAmount.Dec()
		base.SeizeAmount = p.Sizing.SeizeAmount.Dec()
	}
	if p.MinOutput != nil {
		base.MinOutput = p.MinOutput.Dec()
	}
	return base
}

func (r *Runner) record(rec decisionlog.Record) {
	if err := r.opts.Log.Write(rec); err != nil {
		log.Printf("[warn] decision log: %v", err)
	}
}
