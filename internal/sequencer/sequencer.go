// Package sequencer is the single-writer lane in front of the lifecycle
// engine. Commands are stamped, journaled and applied one at a time, in
// admission order.
package sequencer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/civicledger/civic-ledger/internal/journal"
	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

var (
	ErrStopped    = errors.New("sequencer: stopped")
	ErrNotStarted = errors.New("sequencer: not started")
)

// Log is the durable command log. *journal.Journal satisfies it.
type Log interface {
	Append(command []byte) (journal.Entry, error)
	Replay(fn func(journal.Entry) error) error
}

// Observer receives per-command outcomes and, once after replay, the
// registry totals. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveCommand(op string, code string, elapsed time.Duration)
	ObserveStats(stats lifecycle.Stats)
}

type Clock func() time.Time

type request struct {
	ctx   context.Context
	cmd   *Command
	query func(*lifecycle.Engine)
	reply chan response
}

type response struct {
	result Result
	err    error
}

type Sequencer struct {
	engine   *lifecycle.Engine
	log      Log
	notifier lifecycle.Notifier
	clock    Clock
	observer Observer
	tracer   trace.Tracer
	logger   *slog.Logger

	requests chan request
	done     chan struct{}
	stopped  chan struct{}
	start    sync.Once
	stop     sync.Once
	running  atomic.Bool
}

type Option func(*Sequencer)

func WithClock(c Clock) Option { return func(s *Sequencer) { s.clock = c } }

// WithNotifier sets the sink that receives events for live commands.
// Replayed commands never reach it.
func WithNotifier(n lifecycle.Notifier) Option { return func(s *Sequencer) { s.notifier = n } }

func WithObserver(o Observer) Option { return func(s *Sequencer) { s.observer = o } }

func WithTracer(t trace.Tracer) Option { return func(s *Sequencer) { s.tracer = t } }

func WithLogger(l *slog.Logger) Option { return func(s *Sequencer) { s.logger = l } }

func WithQueueSize(n int) Option {
	return func(s *Sequencer) { s.requests = make(chan request, n) }
}

func New(engine *lifecycle.Engine, log Log, opts ...Option) *Sequencer {
	s := &Sequencer{
		engine:   engine,
		log:      log,
		notifier: lifecycle.Discard,
		clock:    func() time.Time { return time.Now().UTC() },
		tracer:   otel.Tracer("github.com/civicledger/civic-ledger/sequencer"),
		logger:   slog.Default(),
		requests: make(chan request, 64),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start replays the log into the engine and then starts the lane. It returns
// the number of replayed commands. Replay publishes no events. An empty log
// gets the engine's genesis as its first entry; a log whose genesis differs
// from the engine's configuration is refused with ErrGenesisMismatch.
func (s *Sequencer) Start() (int, error) {
	var (
		n   int
		err error
	)
	s.start.Do(func() {
		n, err = s.replay()
		if err != nil {
			return
		}
		if s.observer != nil {
			s.observer.ObserveStats(s.engine.Stats())
		}
		s.engine.SetNotifier(s.notifier)
		s.running.Store(true)
		go s.run()
	})
	return n, err
}

func (s *Sequencer) replay() (int, error) {
	if s.log == nil {
		return 0, nil
	}
	s.engine.SetNotifier(lifecycle.Discard)
	configured := GenesisOf(s.engine)

	entries, n := 0, 0
	err := s.log.Replay(func(e journal.Entry) error {
		entries++
		cmd, err := decodeEntry(e)
		if err != nil {
			return err
		}
		if entries == 1 {
			if cmd.Op != OpGenesis || cmd.Genesis == nil {
				return ErrNoGenesis
			}
			if diff := configured.diff(*cmd.Genesis); diff != "" {
				return fmt.Errorf("%w: %s", ErrGenesisMismatch, diff)
			}
			return nil
		}
		if cmd.Op == OpGenesis {
			return fmt.Errorf("%w: entry %d", ErrMisplacedGenesis, e.Seq)
		}
		// Commands that failed when first admitted fail again here.
		_, _ = apply(s.engine, cmd)
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("sequencer: replay: %w", err)
	}

	if entries == 0 {
		raw, err := json.Marshal(configured.command(s.clock()))
		if err != nil {
			return 0, fmt.Errorf("sequencer: encode genesis: %w", err)
		}
		if _, err := s.log.Append(raw); err != nil {
			return 0, fmt.Errorf("sequencer: journal genesis: %w", err)
		}
		s.logger.Info("journal genesis recorded", "grants", len(configured.Grants))
	}

	s.logger.Info("journal replayed", "commands", n)
	return n, nil
}

// Stop ends the lane. Commands already admitted are finished first.
func (s *Sequencer) Stop() {
	s.stop.Do(func() {
		close(s.done)
		if s.running.Load() {
			<-s.stopped
		}
	})
}

func (s *Sequencer) run() {
	defer close(s.stopped)
	for {
		select {
		case req := <-s.requests:
			s.handle(req)
		case <-s.done:
			for {
				select {
				case req := <-s.requests:
					s.handle(req)
				default:
					return
				}
			}
		}
	}
}

func (s *Sequencer) handle(req request) {
	if req.cmd == nil {
		req.query(s.engine)
		req.reply <- response{}
		return
	}
	result, err := s.execute(req.ctx, *req.cmd)
	req.reply <- response{result: result, err: err}
}

func (s *Sequencer) execute(ctx context.Context, cmd Command) (Result, error) {
	start := time.Now()
	if cmd.At.IsZero() {
		cmd.At = s.clock()
	}

	_, span := s.tracer.Start(ctx, "ledger."+string(cmd.Op),
		trace.WithAttributes(
			attribute.String("ledger.op", string(cmd.Op)),
			attribute.String("ledger.caller", string(cmd.Caller)),
		))
	defer span.End()

	result, err := s.journalAndApply(cmd)

	code := lifecycle.ErrorCode(err)
	span.SetAttributes(attribute.String("ledger.outcome", code))
	if result.Report != nil {
		span.SetAttributes(attribute.Int64("ledger.report_id", int64(result.Report.ID)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
	}
	if s.observer != nil {
		s.observer.ObserveCommand(string(cmd.Op), code, time.Since(start))
	}
	if code == "INTERNAL" {
		s.logger.Error("command failed", "op", cmd.Op, "principal", cmd.Caller, "error", err)
	}
	return result, err
}

// journalAndApply records cmd before applying it. Rejected commands stay in
// the log; they are rejected again on replay.
func (s *Sequencer) journalAndApply(cmd Command) (Result, error) {
	var result Result
	if cmd.Op == OpGenesis {
		return result, ErrMisplacedGenesis
	}
	if s.log != nil {
		raw, err := json.Marshal(cmd)
		if err != nil {
			return result, fmt.Errorf("sequencer: encode command: %w", err)
		}
		entry, err := s.log.Append(raw)
		if err != nil {
			return result, fmt.Errorf("sequencer: journal: %w", err)
		}
		result.Seq = entry.Seq
	}
	report, err := apply(s.engine, cmd)
	if err != nil {
		return result, err
	}
	result.Report = report
	return result, nil
}

func (s *Sequencer) send(ctx context.Context, req request) (response, error) {
	if !s.running.Load() {
		return response{}, ErrNotStarted
	}
	select {
	case <-s.done:
		return response{}, ErrStopped
	default:
	}
	select {
	case s.requests <- req:
	case <-s.done:
		return response{}, ErrStopped
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
	select {
	case resp := <-req.reply:
		return resp, nil
	case <-s.stopped:
		select {
		case resp := <-req.reply:
			return resp, nil
		default:
			return response{}, ErrStopped
		}
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

// Execute admits cmd to the lane and waits for its outcome. A command that
// was admitted is applied even if ctx is cancelled while waiting.
func (s *Sequencer) Execute(ctx context.Context, cmd Command) (Result, error) {
	resp, err := s.send(ctx, request{ctx: ctx, cmd: &cmd, reply: make(chan response, 1)})
	if err != nil {
		return Result{}, err
	}
	return resp.result, resp.err
}

// Read runs fn on the lane, so it observes a state between commands.
func (s *Sequencer) Read(ctx context.Context, fn func(*lifecycle.Engine)) error {
	_, err := s.send(ctx, request{ctx: ctx, query: fn, reply: make(chan response, 1)})
	return err
}

func (s *Sequencer) Report(ctx context.Context, id lifecycle.ReportID) (lifecycle.Report, bool, error) {
	var (
		r  lifecycle.Report
		ok bool
	)
	if err := s.Read(ctx, func(e *lifecycle.Engine) { r, ok = e.Report(id) }); err != nil {
		return lifecycle.Report{}, false, err
	}
	return r, ok, nil
}

func (s *Sequencer) HasCapability(ctx context.Context, p lifecycle.Principal, c lifecycle.Capability) (bool, error) {
	var ok bool
	if err := s.Read(ctx, func(e *lifecycle.Engine) { ok = e.HasCapability(p, c) }); err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Sequencer) Grants(ctx context.Context) ([]lifecycle.Grant, error) {
	var grants []lifecycle.Grant
	if err := s.Read(ctx, func(e *lifecycle.Engine) { grants = e.Grants() }); err != nil {
		return nil, err
	}
	return grants, nil
}

func (s *Sequencer) Stats(ctx context.Context) (lifecycle.Stats, error) {
	var stats lifecycle.Stats
	if err := s.Read(ctx, func(e *lifecycle.Engine) { stats = e.Stats() }); err != nil {
		return lifecycle.Stats{}, err
	}
	return stats, nil
}

func (s *Sequencer) Policy() lifecycle.Policy { return s.engine.Policy() }
