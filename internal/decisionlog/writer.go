// Package decisionlog appends one JSON record per evaluation decision to a
// JSONL file so passes can be replayed and audited after the fact.
package decisionlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindStart    Kind = "start"
	KindPass     Kind = "pass"
	KindPlan     Kind = "plan"
	KindVeto     Kind = "veto"
	KindSkip     Kind = "skip"
	KindError    Kind = "error"
	KindSent     Kind = "sent"
	KindShutdown Kind = "shutdown"
)

// Record is one line of the log. Amounts are base-unit decimal strings.
type Record struct {
	Time   time.Time `json:"ts"`
	Kind   Kind      `json:"kind"`
	PassID string    `json:"passId,omitempty"`

	Comptroller string `json:"comptroller,omitempty"`
	Borrower    string `json:"borrower,omitempty"`
	Stage       string `json:"stage,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Error       string `json:"error,omitempty"`

	Method           string `json:"method,omitempty"`
	DebtMarket       string `json:"debtMarket,omitempty"`
	CollateralMarket string `json:"collateralMarket,omitempty"`
	OutputToken      string `json:"outputToken,omitempty"`
	RepayAmount      string `json:"repayAmount,omitempty"`
	SeizeAmount      string `json:"seizeAmount,omitempty"`
	MinOutput        string `json:"minOutput,omitempty"`
	GasLimit         uint64 `json:"gasLimit,omitempty"`
	GasPrice         string `json:"gasPrice,omitempty"`
	EstimationFailed bool   `json:"estimationFailed,omitempty"`
	Strategies       int    `json:"strategies,omitempty"`
	Tx               string `json:"tx,omitempty"`
	DryRun           bool   `json:"dryRun,omitempty"`

	Pools     int   `json:"pools,omitempty"`
	Borrowers int   `json:"borrowers,omitempty"`
	Plans     int   `json:"plans,omitempty"`
	Errors    int   `json:"errors,omitempty"`
	ElapsedMS int64 `json:"elapsedMs,omitempty"`

	Mode string `json:"mode,omitempty"`
}

// NewPassID returns a fresh identifier tying a pass's records together.
func NewPassID() string { return uuid.NewString() }

// Writer is safe for concurrent use. A nil *Writer discards records.
type Writer struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
	now  func() time.Time
}

// New returns a writer appending to path, or nil when path is blank. The file
// is created on the first record.
func New(path string) *Writer {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return &Writer{path: path, now: time.Now}
}

func (w *Writer) ensureOpenLocked() error {
	if w.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.w = bufio.NewWriterSize(f, 64*1024)
	return nil
}

// Write stamps rec with the current time when unset and appends it, flushing
// so tailers see it immediately.
func (w *Writer) Write(rec Record) error {
	if w == nil {
		return nil
	}
	if rec.Kind == "" {
		return errors.New("decisionlog: record kind required")
	}
	if rec.Time.IsZero() {
		rec.Time = w.now().UTC()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpenLocked(); err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if w.w != nil {
		if err := w.w.Flush(); err != nil {
			firstErr = err
		}
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	w.w = nil
	w.file = nil

	if firstErr != nil && errors.Is(firstErr, os.ErrClosed) {
		return nil
	}
	return firstErr
}
