package capture

import (
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSource captures from the default system input device.
type PortAudioSource struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []int16
	stopped bool
}

func NewPortAudioSource() *PortAudioSource { return &PortAudioSource{} }

func (p *PortAudioSource) Start(cfg Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: initialize portaudio: %v", ErrDeviceUnavailable, err)
	}
	p.buf = make([]int16, cfg.FramesPerBuffer*cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(
		cfg.Channels, 0, float64(cfg.SampleRate), cfg.FramesPerBuffer, p.buf,
	)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: open input stream: %v", ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("%w: start input stream: %v", ErrDeviceUnavailable, err)
	}
	p.stream = stream
	p.stopped = false
	return nil
}

func (p *PortAudioSource) ReadFrame() ([]int16, error) {
	p.mu.Lock()
	stream := p.stream
	stopped := p.stopped
	p.mu.Unlock()
	if stopped || stream == nil {
		return nil, io.EOF
	}
	if err := stream.Read(); err != nil {
		return nil, io.EOF
	}
	frame := make([]int16, len(p.buf))
	copy(frame, p.buf)
	return frame, nil
}

func (p *PortAudioSource) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	if p.stream != nil {
		_ = p.stream.Stop()
		_ = p.stream.Close()
		p.stream = nil
	}
	return portaudio.Terminate()
}
