// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/livewatch/internal/metrics"
	"github.com/ManuGH/livewatch/internal/procgroup"
	"github.com/rs/zerolog"
)

// progress is the state reported on ffmpeg's -progress pipe.
type progress struct {
	outTime   time.Duration
	totalSize int64
}

// progressParser accumulates key=value lines from ffmpeg -progress.
type progressParser struct {
	cur         progress
	hasProgress bool
	ended       bool
}

// parseLine applies one line and reports whether it carried new progress.
func (p *progressParser) parseLine(line string) bool {
	key, val, ok := strings.Cut(line, "=")
	if !ok {
		return false
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)

	switch key {
	case "out_time_ms", "out_time_us":
		// ffmpeg reports microseconds under both keys.
		us, err := strconv.ParseInt(val, 10, 64)
		if err != nil || time.Duration(us)*time.Microsecond <= p.cur.outTime {
			return false
		}
		p.cur.outTime = time.Duration(us) * time.Microsecond
	case "total_size":
		size, err := strconv.ParseInt(val, 10, 64)
		if err != nil || size <= p.cur.totalSize {
			return false
		}
		p.cur.totalSize = size
	case "progress":
		if val == "end" {
			p.ended = true
		}
		return false
	default:
		return false
	}
	p.hasProgress = true
	return true
}

type nativeHooks struct {
	progress func(progress)
	loaded   func()
	failed   func(error)
}

// nativeProc is one ffmpeg decode of a live source.
type nativeProc struct {
	cmd    *exec.Cmd
	grace  time.Duration
	logger zerolog.Logger
	hooks  nativeHooks
	diag   *ringBuffer
	exited chan struct{}

	mu      sync.Mutex
	stopped bool
}

func startNative(bin, src string, grace time.Duration, logger zerolog.Logger, hooks nativeHooks) (*nativeProc, error) {
	cmd := exec.Command(bin,
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-progress", "pipe:1",
		"-i", src,
		"-f", "null", "-",
	)
	procgroup.Set(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("exec start: %w", err)
	}

	p := &nativeProc{
		cmd:    cmd,
		grace:  grace,
		logger: logger.With().Int("pid", cmd.Process.Pid).Logger(),
		hooks:  hooks,
		diag:   newRingBuffer(32),
		exited: make(chan struct{}),
	}
	logger.Debug().Str("bin", bin).Int("pid", cmd.Process.Pid).Msg("native playback started")

	var pipes sync.WaitGroup
	pipes.Add(1)
	go func() {
		defer pipes.Done()
		p.collectStderr(stderr)
	}()
	go p.monitor(stdout, &pipes)
	return p, nil
}

func (p *nativeProc) live() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.stopped
}

func (p *nativeProc) collectStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.diag.Add(scanner.Text())
	}
}

func (p *nativeProc) monitor(stdout io.Reader, pipes *sync.WaitGroup) {
	defer close(p.exited)

	var parser progressParser
	loaded := false
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if !parser.parseLine(scanner.Text()) || !p.live() {
			continue
		}
		if p.hooks.progress != nil {
			p.hooks.progress(parser.cur)
		}
		if !loaded {
			loaded = true
			if p.hooks.loaded != nil {
				p.hooks.loaded()
			}
		}
	}
	pipes.Wait()
	err := p.cmd.Wait()

	if !p.live() {
		metrics.IncProcExit("stopped")
		return
	}
	switch {
	case err != nil:
		metrics.IncProcExit("error")
		err = fmt.Errorf("ffmpeg exited: %w (%s)", err, p.diag.Last())
	case parser.ended:
		metrics.IncProcExit("ended")
		err = errors.New("live source ended")
	default:
		metrics.IncProcExit("ended")
		err = errors.New("ffmpeg exited before the stream ended")
	}
	p.logger.Debug().Err(err).Msg("native playback stopped")
	if p.hooks.failed != nil {
		p.hooks.failed(err)
	}
}

// stop terminates the process group without waiting. Processes that ignore
// SIGTERM are killed after the grace period.
func (p *nativeProc) stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	if err := procgroup.Terminate(p.cmd); err != nil {
		p.logger.Warn().Err(err).Msg("terminate native playback")
	}
	time.AfterFunc(p.grace, func() {
		select {
		case <-p.exited:
		default:
			_ = procgroup.Kill(p.cmd)
		}
	})
}

// Exited is closed once the process has been reaped.
func (p *nativeProc) Exited() <-chan struct{} { return p.exited }

// ringBuffer keeps the last lines of ffmpeg stderr for error messages.
type ringBuffer struct {
	mu    sync.Mutex
	lines []string
	pos   int
	full  bool
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{lines: make([]string, size)}
}

func (r *ringBuffer) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.pos] = line
	r.pos = (r.pos + 1) % len(r.lines)
	if r.pos == 0 {
		r.full = true
	}
}

// Last returns the most recent line, or "no diagnostics".
func (r *ringBuffer) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos == 0 && !r.full {
		return "no diagnostics"
	}
	i := (r.pos - 1 + len(r.lines)) % len(r.lines)
	return r.lines[i]
}
