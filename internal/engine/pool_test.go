package engine

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const fakeEngineScript = `#!/bin/sh
while read line; do
  case "$line" in
    ucinewgame) ;;
    uci*) echo "id name fake"; echo "uciok" ;;
    isready) echo "readyok" ;;
    go*) echo "info depth 1 score cp 20"; echo "bestmove e2e4" ;;
    quit) exit 0 ;;
  esac
done
`

const stuckEngineScript = `#!/bin/sh
while read line; do
  case "$line" in
    ucinewgame) ;;
    uci*) echo "uciok" ;;
    isready) echo "readyok" ;;
    go*) sleep 60 ;;
  esac
done
`

func writeFakeEngine(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-engine.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestDifficultyForDefaultsToMedium(t *testing.T) {
	require.Equal(t, "medium", DifficultyFor("").Name)
	require.Equal(t, "medium", DifficultyFor("grandmaster").Name)
	require.Equal(t, "easy", DifficultyFor("  EASY ").Name)
	require.Equal(t, "hard", DifficultyFor("hard").Name)
}

func TestPoolGetBestMove(t *testing.T) {
	pool, err := NewPool(PoolConfig{
		BinaryPath:   writeFakeEngine(t, fakeEngineScript),
		Size:         2,
		MoveDeadline: 2 * time.Second,
	})
	require.NoError(t, err)
	defer pool.Close()

	move, err := pool.GetBestMove(context.Background(), "startpos", "medium")
	require.NoError(t, err)
	require.Equal(t, "e2e4", move)
}

func TestPoolRejectsMissingBinary(t *testing.T) {
	_, err := NewPool(PoolConfig{BinaryPath: "/no/such/engine", Size: 1})
	require.Error(t, err)
}

func TestPoolAllWorkersBusy(t *testing.T) {
	pool, err := NewPool(PoolConfig{
		BinaryPath:   writeFakeEngine(t, fakeEngineScript),
		Size:         1,
		MoveDeadline: 2 * time.Second,
	})
	require.NoError(t, err)
	defer pool.Close()

	idx, _, err := pool.acquire()
	require.NoError(t, err)

	_, err = pool.GetBestMove(context.Background(), "startpos", "medium")
	require.ErrorIs(t, err, ErrAllEnginesBusy)

	pool.release(idx)
	move, err := pool.GetBestMove(context.Background(), "startpos", "medium")
	require.NoError(t, err)
	require.Equal(t, "e2e4", move)
}

func TestPoolTimeoutRespawnsWorker(t *testing.T) {
	pool, err := NewPool(PoolConfig{
		BinaryPath:   writeFakeEngine(t, stuckEngineScript),
		Size:         1,
		MoveDeadline: 300 * time.Millisecond,
	})
	require.NoError(t, err)
	defer pool.Close()

	pool.mu.Lock()
	oldPID := pool.workers[0].w.cmd.Process.Pid
	pool.mu.Unlock()

	_, err = pool.GetBestMove(context.Background(), "startpos", "hard")
	require.ErrorIs(t, err, ErrEngineTimeout)

	pool.mu.Lock()
	s := pool.workers[0]
	require.False(t, s.busy)
	require.NotEqual(t, oldPID, s.w.cmd.Process.Pid)
	pool.mu.Unlock()

	require.True(t, s.w.alive())
}

func TestPoolRespawnsDeadWorkerOnAcquire(t *testing.T) {
	pool, err := NewPool(PoolConfig{
		BinaryPath:   writeFakeEngine(t, fakeEngineScript),
		Size:         1,
		MoveDeadline: 2 * time.Second,
	})
	require.NoError(t, err)
	defer pool.Close()

	pool.mu.Lock()
	pool.workers[0].w.kill()
	pool.mu.Unlock()

	move, err := pool.GetBestMove(context.Background(), "startpos", "medium")
	require.NoError(t, err)
	require.Equal(t, "e2e4", move)
}

const forkingEngineScript = `#!/bin/sh
dir=$(dirname "$0")
sleep 60 &
echo $! > "$dir/child.pid"
while read line; do
  case "$line" in
    ucinewgame) ;;
    uci*) echo "uciok" ;;
    isready) echo "readyok" ;;
    go*) echo "bestmove e2e4" ;;
  esac
done
`

func TestKillTerminatesProcessGroup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-engine.sh")
	require.NoError(t, os.WriteFile(path, []byte(forkingEngineScript), 0o755))

	w, err := spawnWorker(path)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "child.pid"))
	require.NoError(t, err)
	childPID, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)

	w.kill()
	require.False(t, w.alive())
	require.Eventually(t, func() bool {
		return syscall.Kill(childPID, syscall.Signal(0)) != nil
	}, 2*time.Second, 50*time.Millisecond, "forked child must die with the worker")
}

func TestBuildGoCommand(t *testing.T) {
	require.Equal(t, "go depth 1\n", buildGoCommand(searchLimits{Depth: 1}))
	require.Equal(t, "go movetime 800\n", buildGoCommand(searchLimits{MoveTimeMillis: 800}))
	require.Equal(t, "go movetime 100\n", buildGoCommand(searchLimits{}))
}

func TestBuildPositionCommand(t *testing.T) {
	require.Equal(t, "position startpos\n", buildPositionCommand("startpos"))
	require.Equal(t, "position startpos\n", buildPositionCommand("  "))
	require.Equal(t,
		"position fen rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1\n",
		buildPositionCommand("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"))
}
