package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	shellwords "github.com/mattn/go-shellwords"
)

// ExecOptions configures an exec-backed engine.
type ExecOptions struct {
	Command        string
	ModelPath      string
	PartialEveryMS int
}

// ExecEngine shells out to an external recognizer CLI (e.g. a whisper
// wrapper). Each invocation receives the cumulative session audio as a WAV
// file and prints a JSON object {"text": ..., "segments": ...} on stdout.
type ExecEngine struct {
	cmd  []string
	opts ExecOptions
}

func NewExecEngine(opts ExecOptions) (*ExecEngine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(opts.Command)
	if err != nil {
		return nil, fmt.Errorf("parse speech command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("speech command is empty")
	}
	return &ExecEngine{cmd: args, opts: opts}, nil
}

func (e *ExecEngine) Available() bool {
	_, err := exec.LookPath(e.cmd[0])
	return err == nil
}

func (e *ExecEngine) Open(ctx context.Context, cfg Config) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &execStream{
		eng:    e,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, 16),
	}
	interval := time.Duration(e.opts.PartialEveryMS) * time.Millisecond
	if interval > 0 {
		// Bytes of audio per partial pass: rate * channels * 2 bytes/sample.
		s.partialBytes = int(interval.Seconds() * float64(cfg.SampleRate*cfg.Channels*2))
	}
	return s, nil
}

type execStream struct {
	eng    *ExecEngine
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	events chan Event

	mu               sync.Mutex
	buf              []byte
	partialBytes     int
	sincePartial     int
	inflight         bool
	pendingFinal     bool
	ended            bool
	closed           bool
	wg               sync.WaitGroup
}

func (s *execStream) Feed(pcm []byte) error {
	s.mu.Lock()
	if s.ended || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.buf = append(s.buf, pcm...)
	s.sincePartial += len(pcm)
	schedule := s.partialBytes > 0 && s.sincePartial >= s.partialBytes && !s.inflight
	if schedule {
		s.sincePartial = 0
		s.inflight = true
	}
	s.mu.Unlock()

	if schedule {
		s.run(false)
	}
	return nil
}

func (s *execStream) End() {
	s.mu.Lock()
	if s.ended || s.closed {
		s.mu.Unlock()
		return
	}
	s.ended = true
	if s.inflight {
		s.pendingFinal = true
		s.mu.Unlock()
		return
	}
	s.inflight = true
	s.mu.Unlock()
	s.run(true)
}

func (s *execStream) Events() <-chan Event { return s.events }

func (s *execStream) Cancel() {
	s.cancel()
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// run transcribes the accumulated audio in the background and emits one event.
func (s *execStream) run(final bool) {
	s.mu.Lock()
	pcm := append([]byte(nil), s.buf...)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, 45*time.Second)
		defer cancel()

		text, segments, err := s.eng.transcribe(ctx, pcm, s.cfg, final)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		pendingFinal := s.pendingFinal
		s.pendingFinal = false
		if err != nil {
			if final {
				s.events <- Event{Err: err}
				s.closed = true
				close(s.events)
				s.mu.Unlock()
				return
			}
			// Partial failures are retried on the next pass.
		} else {
			s.events <- Event{Text: text, Segments: segments, Final: final}
			if final {
				s.closed = true
				close(s.events)
				s.mu.Unlock()
				return
			}
		}
		s.inflight = pendingFinal
		s.mu.Unlock()

		if pendingFinal {
			s.run(true)
		}
	}()
}

type execResult struct {
	Text     string `json:"text"`
	Segments int    `json:"segments"`
}

func (e *ExecEngine) transcribe(ctx context.Context, pcm []byte, cfg Config, final bool) (string, int, error) {
	file, err := os.CreateTemp(os.TempDir(), "pace_stt_*.wav")
	if err != nil {
		return "", 0, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writePCMToWav(file, pcm, cfg.SampleRate, cfg.Channels); err != nil {
		return "", 0, err
	}

	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--audio", file.Name())
	if e.opts.ModelPath != "" {
		args = append(args, "--model", e.opts.ModelPath)
	}
	if cfg.Language != "" {
		args = append(args, "--language", cfg.Language)
	}
	if !final {
		args = append(args, "--partial")
	}

	command := exec.CommandContext(ctx, e.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return "", 0, fmt.Errorf("speech command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return "", 0, fmt.Errorf("decode speech response: %w", err)
	}
	segments := resp.Segments
	if segments == 0 {
		segments = len(strings.Fields(resp.Text))
	}
	return resp.Text, segments, nil
}

func writePCMToWav(file *os.File, pcm []byte, sampleRate, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   samples,
	}
	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
