package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/decisionlog"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/engine"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/fuse"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/position"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/sender"
)

type staticSource struct {
	pools []position.PoolPositions
	err   error
}

func (s staticSource) LiquidatablePositions(context.Context, fuse.Filter) ([]position.PoolPositions, error) {
	return s.pools, s.err
}

// scriptedEvaluator answers by borrower account.
type scriptedEvaluator struct {
	mu      sync.Mutex
	calls   int
	results map[common.Address]func() (engine.Outcome, error)
}

func (e *scriptedEvaluator) Evaluate(_ context.Context, b position.Borrower, _ position.Pool) (engine.Outcome, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.results[b.Account]()
}

type recordingSubmitter struct {
	mu    sync.Mutex
	plans []*engine.Plan
	err   error
}

func (s *recordingSubmitter) Send(_ context.Context, p *engine.Plan) (sender.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = append(s.plans, p)
	if s.err != nil {
		return sender.Result{}, s.err
	}
	return sender.Result{Hash: common.HexToHash(fmt.Sprintf("0x%x", len(s.plans))), GasLimit: 1}, nil
}

func addr(b byte) common.Address { return common.BytesToAddress([]byte{b}) }

func plan(b common.Address) *engine.Plan {
	return &engine.Plan{
		CallSpec: engine.CallSpec{Method: engine.MethodDirectNative},
		Borrower: b,
		Sizing: engine.Sizing{
			RepayAmount: uint256.NewInt(10),
			SeizeAmount: uint256.NewInt(12),
		},
		MinOutput: uint256.NewInt(11),
	}
}

func fixture() (staticSource, *scriptedEvaluator) {
	pools := []position.PoolPositions{
		{Pool: position.Pool{Comptroller: addr(0xc1)}, Borrowers: []position.Borrower{{Account: addr(1)}, {Account: addr(2)}}},
		{Pool: position.Pool{Comptroller: addr(0xc2)}, Borrowers: []position.Borrower{{Account: addr(3)}, {Account: addr(4)}}},
	}
	eval := &scriptedEvaluator{results: map[common.Address]func() (engine.Outcome, error){
		addr(1): func() (engine.Outcome, error) {
			return engine.Outcome{Borrower: addr(1), Stage: engine.StagePlanBuilt, Reached: engine.StagePlanBuilt, Plan: plan(addr(1))}, nil
		},
		addr(2): func() (engine.Outcome, error) {
			return engine.Outcome{}, fmt.Errorf("price: %w", engine.ErrPriceUnavailable)
		},
		addr(3): func() (engine.Outcome, error) {
			return engine.Outcome{Borrower: addr(3), Stage: engine.StageRejected, Reached: engine.StageStrategyResolved, Reason: engine.ReasonUnprofitable}, nil
		},
		addr(4): func() (engine.Outcome, error) {
			return engine.Outcome{Borrower: addr(4), Stage: engine.StageRejected, Reached: engine.StageNormalized, Reason: engine.ReasonNoCollateral}, nil
		},
	}}
	return staticSource{pools: pools}, eval
}

func TestPass_IsolatesBorrowerErrors(t *testing.T) {
	source, eval := fixture()
	sub := &recordingSubmitter{}
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	dlog := decisionlog.New(path)

	r, err := New(source, eval, sub, Options{Concurrency: 2, Log: dlog})
	require.NoError(t, err)

	rep, err := r.Pass(context.Background())
	require.NoError(t, err)
	require.NoError(t, dlog.Close())

	require.Equal(t, 4, eval.calls, "an error for one borrower does not stop its siblings")
	require.Equal(t, 2, rep.Pools)
	require.Equal(t, 4, rep.Borrowers)
	require.Equal(t, 1, rep.Errors)
	require.Equal(t, 1, rep.Vetoes)
	require.Equal(t, 1, rep.Skips)
	require.Equal(t, 1, rep.Sent)
	require.Len(t, rep.Planned, 1)
	require.NotNil(t, rep.Planned[0].Result)
	require.Equal(t, addr(1), sub.plans[0].Borrower)
	require.Same(t, rep, r.Last())

	kinds := map[decisionlog.Kind]int{}
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec decisionlog.Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		require.Equal(t, rep.PassID, rec.PassID)
		kinds[rec.Kind]++
	}
	require.Equal(t, map[decisionlog.Kind]int{
		decisionlog.KindPlan:  1,
		decisionlog.KindSent:  1,
		decisionlog.KindError: 1,
		decisionlog.KindVeto:  1,
		decisionlog.KindSkip:  1,
		decisionlog.KindPass:  1,
	}, kinds)
}

func TestPass_WithoutSubmitterOnlyReports(t *testing.T) {
	source, eval := fixture()
	r, err := New(source, eval, nil, Options{})
	require.NoError(t, err)

	rep, err := r.Pass(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Planned, 1)
	require.Nil(t, rep.Planned[0].Result)
	require.Zero(t, rep.Sent)
}

func TestPass_SendFailureIsRecorded(t *testing.T) {
	source, eval := fixture()
	sub := &recordingSubmitter{err: sender.ErrEstimateFailed}
	r, err := New(source, eval, sub, Options{})
	require.NoError(t, err)

	rep, err := r.Pass(context.Background())
	require.NoError(t, err)
	require.Zero(t, rep.Sent)
	require.Contains(t, rep.Planned[0].SendError, "gas estimation failed")
}

func TestPass_CountsUndecodableBorrowers(t *testing.T) {
	source, eval := fixture()
	source.pools[1].Dropped = 2
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	dlog := decisionlog.New(path)

	r, err := New(source, eval, nil, Options{Log: dlog})
	require.NoError(t, err)
	rep, err := r.Pass(context.Background())
	require.NoError(t, err)
	require.NoError(t, dlog.Close())

	require.Equal(t, 4, eval.calls, "decoded borrowers of the same pool are still evaluated")
	require.Equal(t, 3, rep.Errors)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "2 borrower records could not be decoded")
}

func TestPass_SourceFailure(t *testing.T) {
	boom := errors.New("lens unavailable")
	r, err := New(staticSource{err: boom}, &scriptedEvaluator{}, nil, Options{})
	require.NoError(t, err)

	_, err = r.Pass(context.Background())
	require.ErrorIs(t, err, boom)
	require.Nil(t, r.Last())
}

func TestPass_CancelledContext(t *testing.T) {
	source, eval := fixture()
	r, err := New(source, eval, nil, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Pass(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, eval.calls)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, &scriptedEvaluator{}, nil, Options{})
	require.Error(t, err)
}
