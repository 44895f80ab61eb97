package playback

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// PortAudioPlayer streams a WAV file to the default output device.
type PortAudioPlayer struct {
	mu   sync.Mutex
	stop chan struct{}
}

func NewPortAudioPlayer() *PortAudioPlayer { return &PortAudioPlayer{} }

func (p *PortAudioPlayer) Play(ctx context.Context, path string, done func(error)) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoArtifact, err)
	}
	dec := wav.NewDecoder(file)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		file.Close()
		return fmt.Errorf("%w: not a wav file", ErrNoArtifact)
	}

	p.mu.Lock()
	if p.stop != nil {
		p.mu.Unlock()
		file.Close()
		return fmt.Errorf("playback already active")
	}
	stop := make(chan struct{})
	p.stop = stop
	p.mu.Unlock()

	go func() {
		err := p.stream(ctx, dec, int(dec.NumChans), int(dec.SampleRate), stop)
		file.Close()
		p.mu.Lock()
		if p.stop == stop {
			p.stop = nil
		}
		p.mu.Unlock()
		if done != nil {
			done(err)
		}
	}()
	return nil
}

func (p *PortAudioPlayer) stream(ctx context.Context, dec *wav.Decoder, channels, sampleRate int, stop <-chan struct{}) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	out := make([]int16, framesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), framesPerBuffer, out)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer stream.Stop()

	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   make([]int, len(out)),
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return fmt.Errorf("read wav: %w", err)
		}
		if n == 0 {
			return nil
		}
		for i := range out {
			if i < n {
				out[i] = int16(buf.Data[i])
			} else {
				out[i] = 0
			}
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("write output stream: %w", err)
		}
	}
}

func (p *PortAudioPlayer) Stop() {
	p.mu.Lock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	p.mu.Unlock()
}
