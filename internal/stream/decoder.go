package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
)

const (
	sampleRate = 48000
	channels   = 2
	// 20 ms of interleaved s16 stereo at 48 kHz.
	frameSamples = 960
	frameBytes   = frameSamples * channels * 2
)

// decoder opens a media URL and produces fixed size s16le stereo 48k PCM
// frames, resampling whatever the source carries.
type decoder struct {
	mu     sync.Mutex
	closed bool
	ii     *astiav.IOInterrupter

	fc       *astiav.FormatContext
	st       *astiav.Stream
	dec      *astiav.CodecContext
	swr      *astiav.SoftwareResampleContext
	pkt      *astiav.Packet
	srcFrame *astiav.Frame
	dstFrame *astiav.Frame

	pending []byte
	// samples handed out so far, counted from the media start
	samples int64
	drained bool
}

// openDecoder opens url positioned at start. Cancelling ctx aborts a
// blocking open.
func openDecoder(ctx context.Context, url string, start time.Duration, headers string) (*decoder, error) {
	d := &decoder{}

	d.fc = astiav.AllocFormatContext()
	if d.fc == nil {
		return nil, errors.New("alloc format context")
	}
	d.ii = astiav.NewIOInterrupter()
	d.fc.SetIOInterrupter(d.ii)
	stop := context.AfterFunc(ctx, d.Interrupt)
	defer stop()

	dict := astiav.NewDictionary()
	defer dict.Free()
	_ = dict.Set("reconnect", "1", 0)
	_ = dict.Set("reconnect_streamed", "1", 0)
	_ = dict.Set("reconnect_delay_max", "5", 0)
	if headers != "" {
		_ = dict.Set("headers", headers, 0)
	}

	if err := d.fc.OpenInput(url, nil, dict); err != nil {
		d.fc.Free()
		d.ii.Free()
		return nil, fmt.Errorf("open input: %w", err)
	}
	opened := false
	defer func() {
		if !opened {
			d.Close()
		}
	}()

	if err := d.fc.FindStreamInfo(nil); err != nil {
		return nil, fmt.Errorf("find stream info: %w", err)
	}

	st, codec, err := d.fc.FindBestStream(astiav.MediaTypeAudio, -1, -1)
	if err != nil {
		return nil, fmt.Errorf("find best audio stream: %w", err)
	}
	if st == nil || codec == nil {
		return nil, errors.New("no audio stream found")
	}
	d.st = st

	d.dec = astiav.AllocCodecContext(codec)
	if d.dec == nil {
		return nil, errors.New("alloc codec context")
	}
	if err := d.dec.FromCodecParameters(st.CodecParameters()); err != nil {
		return nil, fmt.Errorf("codec from params: %w", err)
	}
	d.dec.SetTimeBase(st.TimeBase())
	if err := d.dec.Open(codec, nil); err != nil {
		return nil, fmt.Errorf("open decoder: %w", err)
	}

	d.swr = astiav.AllocSoftwareResampleContext()
	d.pkt = astiav.AllocPacket()
	d.srcFrame = astiav.AllocFrame()
	d.dstFrame = astiav.AllocFrame()
	if d.swr == nil || d.pkt == nil || d.srcFrame == nil || d.dstFrame == nil {
		return nil, errors.New("alloc resampler")
	}

	if start > 0 {
		tb := st.TimeBase()
		ts := int64(start.Seconds() / tb.Float64())
		if err := d.fc.SeekFrame(st.Index(), ts, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
			return nil, fmt.Errorf("seek to %s: %w", start, err)
		}
		d.samples = int64(start.Seconds() * sampleRate)
	}

	opened = true
	return d, nil
}

// ReadFrame fills buf with exactly one frame and returns the media position
// of its first sample. The last frame of a stream is padded with silence.
func (d *decoder) ReadFrame(buf []byte) (time.Duration, error) {
	for len(d.pending) < len(buf) {
		if d.drained {
			if len(d.pending) == 0 {
				return 0, io.EOF
			}
			clear(buf)
			break
		}
		if err := d.decodeMore(); err != nil {
			return 0, err
		}
	}

	n := copy(buf, d.pending)
	d.pending = d.pending[n:]

	pos := samplesToDuration(d.samples)
	d.samples += int64(len(buf) / (channels * 2))
	return pos, nil
}

func (d *decoder) decodeMore() error {
	d.pkt.Unref()
	if err := d.fc.ReadFrame(d.pkt); err != nil {
		if errors.Is(err, astiav.ErrEof) {
			_ = d.dec.SendPacket(nil)
			d.drained = true
			return d.receiveFrames()
		}
		if errors.Is(err, astiav.ErrEagain) {
			return nil
		}
		return fmt.Errorf("read frame: %w", err)
	}
	if d.pkt.StreamIndex() != d.st.Index() {
		return nil
	}
	if err := d.dec.SendPacket(d.pkt); err != nil && !errors.Is(err, astiav.ErrEagain) {
		return fmt.Errorf("send packet: %w", err)
	}
	return d.receiveFrames()
}

func (d *decoder) receiveFrames() error {
	for {
		d.srcFrame.Unref()
		if err := d.dec.ReceiveFrame(d.srcFrame); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("receive frame: %w", err)
		}
		if err := d.resample(d.srcFrame); err != nil {
			return err
		}
	}
}

func (d *decoder) resample(src *astiav.Frame) error {
	// Some codecs leave the layout unset.
	if !src.ChannelLayout().Valid() {
		if src.ChannelLayout().Channels() == 1 {
			src.SetChannelLayout(astiav.ChannelLayoutMono)
		} else {
			src.SetChannelLayout(astiav.ChannelLayoutStereo)
		}
	}

	d.dstFrame.Unref()
	d.dstFrame.SetChannelLayout(astiav.ChannelLayoutStereo)
	d.dstFrame.SetSampleRate(sampleRate)
	d.dstFrame.SetSampleFormat(astiav.SampleFormatS16)
	if err := d.swr.ConvertFrame(src, d.dstFrame); err != nil {
		return fmt.Errorf("swr convert: %w", err)
	}
	if d.dstFrame.NbSamples() == 0 {
		return nil
	}
	b, err := d.dstFrame.Data().Bytes(1)
	if err != nil {
		return fmt.Errorf("dst bytes: %w", err)
	}
	d.pending = append(d.pending, b...)
	return nil
}

// Interrupt aborts blocking network reads.
func (d *decoder) Interrupt() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.ii.Interrupt()
	}
}

func (d *decoder) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.srcFrame != nil {
		d.srcFrame.Free()
	}
	if d.dstFrame != nil {
		d.dstFrame.Free()
	}
	if d.pkt != nil {
		d.pkt.Free()
	}
	if d.swr != nil {
		d.swr.Free()
	}
	if d.dec != nil {
		d.dec.Free()
	}
	if d.fc != nil {
		d.fc.CloseInput()
		d.fc.Free()
	}
	d.ii.Free()
}

func samplesToDuration(n int64) time.Duration {
	return time.Duration(n) * time.Second / sampleRate
}

// scaleVolume applies a 0-100 volume to interleaved s16le samples in place.
func scaleVolume(pcm []byte, volume int) {
	if volume >= 100 {
		return
	}
	if volume <= 0 {
		clear(pcm)
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int32(int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8))
		v = v * int32(volume) / 100
		pcm[i] = byte(uint16(int16(v)))
		pcm[i+1] = byte(uint16(int16(v)) >> 8)
	}
}
