package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/glebovdev/trackdeck/internal/config"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSampleRate  = beep.SampleRate(44100)
	SpeakerBufferSize  = time.Millisecond * 250
	TimeUpdateInterval = 250 * time.Millisecond
	ResampleQuality    = 4
	MaxTrackBytes      = 256 << 20
)

var errResourceClosed = errors.New("audio resource closed")

var (
	speakerMu   sync.Mutex
	speakerInit bool
)

func initSpeaker() error {
	speakerMu.Lock()
	defer speakerMu.Unlock()

	if speakerInit {
		return nil
	}
	if err := speaker.Init(DefaultSampleRate, DefaultSampleRate.N(SpeakerBufferSize)); err != nil {
		return fmt.Errorf("%w: %v", ErrPlaybackRejected, err)
	}
	speakerInit = true
	log.Debug().Msgf("Speaker initialized with sample rate: %d Hz, buffer: %v", DefaultSampleRate, SpeakerBufferSize)
	return nil
}

// memFile lets decoders seek inside a fully downloaded body.
type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

// NewBeepFactory returns a ResourceFactory that downloads the stream body and
// plays it through the beep speaker.
func NewBeepFactory(client *http.Client) ResourceFactory {
	if client == nil {
		client = NewHTTPClient()
	}
	return func(url string, events Events) Resource {
		r := &beepResource{
			url:           url,
			client:        client,
			events:        events,
			loaded:        make(chan struct{}),
			volumePercent: 100,
			rate:          DefaultRate,
		}
		r.ctx, r.cancel = context.WithCancel(context.Background())
		go r.load()
		return r
	}
}

type beepResource struct {
	url    string
	client *http.Client
	events Events
	ctx    context.Context
	cancel context.CancelFunc

	loaded  chan struct{}
	loadErr error

	// Set once under mu before ready; the audio fields are then only
	// touched with the speaker lock held.
	streamer  beep.StreamSeekCloser
	format    beep.Format
	resampler *beep.Resampler
	volume    *effects.Volume
	ctrl      *beep.Ctrl

	mu            sync.Mutex
	ready         bool
	closed        bool
	inSpeaker     bool
	ticking       bool
	volumePercent int
	rate          float64
	pendingSeek   time.Duration
}

func (r *beepResource) Source() string { return r.url }

func (r *beepResource) load() {
	defer close(r.loaded)

	if r.events.OnWaiting != nil {
		r.events.OnWaiting()
	}

	streamer, format, err := r.fetchAndDecode()
	if err != nil {
		r.loadErr = err
		if r.ctx.Err() == nil && r.events.OnError != nil {
			r.events.OnError(err)
		}
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		streamer.Close()
		r.loadErr = errResourceClosed
		return
	}
	r.streamer = streamer
	r.format = format
	r.resampler = beep.ResampleRatio(ResampleQuality, r.baseRatio()*r.rate, streamer)
	r.volume = &effects.Volume{
		Streamer: r.resampler,
		Base:     2,
		Volume:   percentToExponent(float64(r.volumePercent)),
		Silent:   r.volumePercent == 0,
	}
	r.ctrl = &beep.Ctrl{Streamer: r.volume, Paused: true}
	if r.pendingSeek > 0 {
		if err := streamer.Seek(r.clampSamples(r.pendingSeek)); err != nil {
			log.Debug().Err(err).Msg("Failed to apply pending seek")
		}
	}
	r.ready = true
	r.mu.Unlock()

	if r.events.OnMetadata != nil {
		r.events.OnMetadata(format.SampleRate.D(streamer.Len()))
	}
}

func (r *beepResource) fetchAndDecode() (beep.StreamSeekCloser, beep.Format, error) {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", fmt.Sprintf("trackdeck/%s", config.AppVersion))

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("failed to fetch stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, beep.Format{}, &httpStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body := &contextReader{reader: resp.Body, ctx: r.ctx, timeout: ReadTimeout}
	data, err := io.ReadAll(io.LimitReader(body, MaxTrackBytes+1))
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("network read error: %w", err)
	}
	if len(data) > MaxTrackBytes {
		return nil, beep.Format{}, fmt.Errorf("stream exceeds %d bytes", MaxTrackBytes)
	}
	log.Debug().Int("bytes", len(data)).Str("content_type", resp.Header.Get("Content-Type")).Msg("Stream downloaded")

	src := memFile{bytes.NewReader(data)}
	if isWAV(resp.Header.Get("Content-Type"), r.url) {
		streamer, format, err := wav.Decode(src)
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("failed to decode WAV stream: %w", err)
		}
		return streamer, format, nil
	}

	streamer, format, err := mp3.Decode(src)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("failed to decode MP3 stream: %w", err)
	}
	return streamer, format, nil
}

func isWAV(contentType, rawURL string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "wav") {
		return true
	}
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	return strings.EqualFold(path.Ext(rawURL), ".wav")
}

func (r *beepResource) baseRatio() float64 {
	return float64(r.format.SampleRate) / float64(DefaultSampleRate)
}

func (r *beepResource) clampSamples(pos time.Duration) int {
	n := r.format.SampleRate.N(pos)
	return max(0, min(n, r.streamer.Len()))
}

func (r *beepResource) Play() error {
	select {
	case <-r.loaded:
	case <-r.ctx.Done():
		return errResourceClosed
	}
	if r.loadErr != nil {
		return r.loadErr
	}

	if err := initSpeaker(); err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errResourceClosed
	}
	needsSpeaker := !r.inSpeaker
	r.inSpeaker = true
	startTicker := !r.ticking
	r.ticking = true
	r.mu.Unlock()

	speaker.Lock()
	r.ctrl.Paused = false
	speaker.Unlock()

	if needsSpeaker {
		speaker.Play(beep.Seq(r.ctrl, beep.Callback(r.finished)))
	}
	if startTicker {
		go r.tick()
	}

	if r.events.OnPlaying != nil {
		r.events.OnPlaying()
	}
	return nil
}

// finished runs on the speaker goroutine with the speaker lock held.
func (r *beepResource) finished() {
	r.mu.Lock()
	r.inSpeaker = false
	closed := r.closed
	r.mu.Unlock()

	if !closed && r.events.OnEnded != nil {
		go r.events.OnEnded()
	}
}

func (r *beepResource) tick() {
	ticker := time.NewTicker(TimeUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			speaker.Lock()
			paused := r.ctrl.Paused
			pos := r.streamer.Position()
			speaker.Unlock()

			if !paused && r.events.OnTimeUpdate != nil {
				r.events.OnTimeUpdate(r.format.SampleRate.D(pos))
			}
		}
	}
}

func (r *beepResource) Pause() {
	r.mu.Lock()
	ready := r.ready && !r.closed
	r.mu.Unlock()
	if !ready {
		return
	}

	speaker.Lock()
	r.ctrl.Paused = true
	speaker.Unlock()

	if r.events.OnPaused != nil {
		r.events.OnPaused()
	}
}

func (r *beepResource) Seek(position time.Duration) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errResourceClosed
	}
	if !r.ready {
		r.pendingSeek = position
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	speaker.Lock()
	err := r.streamer.Seek(r.clampSamples(position))
	speaker.Unlock()
	if err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	if r.events.OnTimeUpdate != nil {
		r.events.OnTimeUpdate(position)
	}
	return nil
}

func (r *beepResource) SetVolume(percent int) {
	r.mu.Lock()
	r.volumePercent = percent
	ready := r.ready && !r.closed
	r.mu.Unlock()
	if !ready {
		return
	}

	speaker.Lock()
	r.volume.Volume = percentToExponent(float64(percent))
	r.volume.Silent = percent == 0
	speaker.Unlock()
}

func (r *beepResource) SetRate(rate float64) {
	rate = clampRate(rate)
	r.mu.Lock()
	r.rate = rate
	ready := r.ready && !r.closed
	r.mu.Unlock()
	if !ready {
		return
	}

	speaker.Lock()
	r.resampler.SetRatio(r.baseRatio() * rate)
	speaker.Unlock()
}

func (r *beepResource) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	ready := r.ready
	r.mu.Unlock()

	r.cancel()

	if ready {
		speaker.Lock()
		r.ctrl.Streamer = nil
		r.ctrl.Paused = true
		speaker.Unlock()
		if err := r.streamer.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close decoder")
		}
	}
}
