package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Aram47/chess-game-monolit-backend/internal/obslog"
)

var (
	ErrAllEnginesBusy = errors.New("all engine workers busy")
	ErrEngineTimeout  = errors.New("engine search timed out")
	ErrNoLegalMoves   = errors.New("engine found no legal moves")
)

type PoolConfig struct {
	BinaryPath   string
	Size         int
	MoveDeadline time.Duration
}

type slot struct {
	w    *worker
	busy bool
}

// Pool is a fixed set of engine subprocesses local to this instance. A
// request either grabs an idle worker immediately or fails with
// ErrAllEnginesBusy; nothing queues. Workers that hang or die are replaced,
// never reused.
type Pool struct {
	binaryPath string
	deadline   time.Duration

	mu      sync.Mutex
	workers []*slot
	cursor  int

	randMu sync.Mutex
	rand   *rand.Rand
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("engine binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("engine binary check: %w", err)
	}
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("pool size must be positive: %d", cfg.Size)
	}
	deadline := cfg.MoveDeadline
	if deadline <= 0 {
		deadline = 5 * time.Second
	}

	p := &Pool{
		binaryPath: cfg.BinaryPath,
		deadline:   deadline,
		workers:    make([]*slot, cfg.Size),
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for i := range p.workers {
		w, err := spawnWorker(cfg.BinaryPath)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("spawn worker %d: %w", i, err)
		}
		p.workers[i] = &slot{w: w}
	}
	obslog.L().Info("engine_pool_start",
		zap.Int("size", cfg.Size),
		zap.Duration("move_deadline", deadline),
	)
	return p, nil
}

// GetBestMove asks an idle worker for a reply to the given position and
// returns the move in UCI form.
func (p *Pool) GetBestMove(ctx context.Context, fen, difficulty string) (string, error) {
	preset := DifficultyFor(difficulty)
	limits := searchLimits{
		MoveTimeMillis: preset.MoveTimeMillis,
		SkillLevel:     preset.SkillLevel,
	}
	if preset.ShallowProbability > 0 && p.roll() < preset.ShallowProbability {
		limits = searchLimits{Depth: 1, SkillLevel: preset.SkillLevel}
	}

	idx, w, err := p.acquire()
	if err != nil {
		return "", err
	}

	searchCtx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	move, err := w.bestMove(searchCtx, fen, limits)
	if err != nil {
		// a hung or broken worker is replaced, never returned to the pool
		p.replace(idx, w)
		if errors.Is(err, context.DeadlineExceeded) {
			obslog.L().Warn("engine_timeout",
				zap.Int("worker", idx),
				zap.String("difficulty", preset.Name),
			)
			return "", ErrEngineTimeout
		}
		return "", fmt.Errorf("engine search: %w", err)
	}
	p.release(idx)

	if move == "" || move == "(none)" || move == "0000" {
		return "", ErrNoLegalMoves
	}
	return move, nil
}

// acquire scans round-robin from a rotating cursor. Dead workers found
// during the scan are respawned in place and handed out directly.
func (p *Pool) acquire() (int, *worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.workers)
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		s := p.workers[idx]
		if s.busy {
			continue
		}
		if !s.w.alive() {
			obslog.L().Warn("engine_worker_dead", zap.Int("worker", idx))
			w, err := spawnWorker(p.binaryPath)
			if err != nil {
				return 0, nil, fmt.Errorf("respawn worker %d: %w", idx, err)
			}
			s.w = w
		}
		s.busy = true
		p.cursor = (idx + 1) % n
		return idx, s.w, nil
	}
	return 0, nil, ErrAllEnginesBusy
}

func (p *Pool) release(idx int) {
	p.mu.Lock()
	p.workers[idx].busy = false
	p.mu.Unlock()
}

// replace force-kills a worker and spawns a fresh process into its slot.
// Respawn failures leave the slot idle with the dead handle; the next
// acquire retries the spawn.
func (p *Pool) replace(idx int, old *worker) {
	old.kill()

	w, err := spawnWorker(p.binaryPath)

	p.mu.Lock()
	s := p.workers[idx]
	if err == nil {
		s.w = w
	}
	s.busy = false
	p.mu.Unlock()

	if err != nil {
		obslog.L().Error("engine_respawn_failed", zap.Int("worker", idx), zap.Error(err))
		return
	}
	obslog.L().Info("engine_worker_respawn", zap.Int("worker", idx))
}

// Close terminates every live worker. Called on process shutdown.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.workers {
		if s != nil && s.w != nil {
			s.w.kill()
		}
	}
	return nil
}

func (p *Pool) roll() float64 {
	p.randMu.Lock()
	defer p.randMu.Unlock()
	return p.rand.Float64()
}
