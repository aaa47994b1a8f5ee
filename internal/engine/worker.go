package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

const spawnReadyTimeout = 4 * time.Second

// worker owns one UCI engine subprocess. All I/O is synchronous
// request/response over the process pipes; the pool guarantees a worker is
// never driven by two requests at once.
type worker struct {
	binaryPath string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Reader
	mu         sync.Mutex
}

func spawnWorker(binaryPath string) (*worker, error) {
	cmd := exec.Command(binaryPath)
	// own process group, so kill() can take down helpers the engine forks
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	w := &worker{
		binaryPath: binaryPath,
		cmd:        cmd,
		stdin:      stdin,
		stdout:     bufio.NewReader(stdoutPipe),
	}
	if err := w.initialize(); err != nil {
		w.kill()
		return nil, err
	}
	return w, nil
}

func (w *worker) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), spawnReadyTimeout)
	defer cancel()

	if err := w.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := w.awaitToken(ctx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}
	if err := w.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := w.awaitToken(ctx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

// alive probes the subprocess without reaping it.
func (w *worker) alive() bool {
	if w == nil || w.cmd == nil || w.cmd.Process == nil {
		return false
	}
	return w.cmd.Process.Signal(syscall.Signal(0)) == nil
}

// bestMove resets the engine, sets the position and searches within ctx's
// deadline. Returns the raw UCI move token from the bestmove line.
func (w *worker) bestMove(ctx context.Context, fen string, limits searchLimits) (string, error) {
	if err := w.send("ucinewgame\n"); err != nil {
		return "", fmt.Errorf("send ucinewgame: %w", err)
	}
	if limits.SkillLevel > 0 {
		cmd := fmt.Sprintf("setoption name Skill Level value %d\n", limits.SkillLevel)
		if err := w.send(cmd); err != nil {
			return "", fmt.Errorf("apply skill level: %w", err)
		}
	}
	if err := w.send("isready\n"); err != nil {
		return "", fmt.Errorf("send isready: %w", err)
	}
	if err := w.awaitToken(ctx, "readyok"); err != nil {
		return "", fmt.Errorf("wait readyok: %w", err)
	}

	if err := w.send(buildPositionCommand(fen)); err != nil {
		return "", fmt.Errorf("send position: %w", err)
	}
	if err := w.send(buildGoCommand(limits)); err != nil {
		return "", fmt.Errorf("send go: %w", err)
	}

	for {
		line, err := w.readLine(ctx)
		if err != nil {
			return "", fmt.Errorf("read line: %w", err)
		}
		if !strings.HasPrefix(line, "bestmove") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			return "", fmt.Errorf("malformed bestmove line %q", line)
		}
		return parts[1], nil
	}
}

func buildPositionCommand(fen string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(fen)
	}
	sb.WriteString("\n")
	return sb.String()
}

func buildGoCommand(l searchLimits) string {
	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if len(args) == 1 {
		args = append(args, "movetime", "100")
	}
	return strings.Join(args, " ") + "\n"
}

func (w *worker) kill() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stdin != nil {
		w.stdin.Close()
	}
	if w.cmd != nil && w.cmd.Process != nil {
		if err := syscall.Kill(-w.cmd.Process.Pid, syscall.SIGKILL); err != nil {
			_ = w.cmd.Process.Kill()
		}
	}
	if w.cmd != nil {
		_ = w.cmd.Wait()
	}
}

func (w *worker) send(msg string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := io.WriteString(w.stdin, msg)
	return err
}

func (w *worker) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := w.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

func (w *worker) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		line, err := w.stdout.ReadString('\n')
		ch <- result{line: strings.TrimSpace(line), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		return res.line, res.err
	}
}
