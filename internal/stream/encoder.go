package stream

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
)

// packetSink receives encoded packets. Returning false stops encoding.
type packetSink func(pkt []byte) bool

var errSinkClosed = errors.New("packet sink closed")

// opusEncoder turns 20 ms s16le stereo frames into Opus packets.
type opusEncoder struct {
	cc     *astiav.CodecContext
	frame  *astiav.Frame
	packet *astiav.Packet
}

func newOpusEncoder(bitrate int64) (enc *opusEncoder, err error) {
	codec := astiav.FindEncoderByName("libopus")
	if codec == nil {
		return nil, errors.New("ffmpeg was built without libopus")
	}

	enc = &opusEncoder{}
	defer func() {
		if err != nil {
			enc.Close()
			enc = nil
		}
	}()

	if enc.cc = astiav.AllocCodecContext(codec); enc.cc == nil {
		return nil, errors.New("alloc opus codec context")
	}
	enc.cc.SetSampleRate(sampleRate)
	enc.cc.SetChannelLayout(astiav.ChannelLayoutStereo)
	enc.cc.SetSampleFormat(astiav.SampleFormatS16)
	enc.cc.SetBitRate(bitrate)

	dict := astiav.NewDictionary()
	defer dict.Free()
	for k, v := range map[string]string{"frame_duration": "20", "application": "audio", "vbr": "on"} {
		if err := dict.Set(k, v, 0); err != nil {
			return nil, fmt.Errorf("opus option %s: %w", k, err)
		}
	}
	if err := enc.cc.Open(codec, dict); err != nil {
		return nil, fmt.Errorf("open opus encoder: %w", err)
	}

	if enc.frame = astiav.AllocFrame(); enc.frame == nil {
		return nil, errors.New("alloc encoder frame")
	}
	enc.frame.SetSampleRate(sampleRate)
	enc.frame.SetChannelLayout(astiav.ChannelLayoutStereo)
	enc.frame.SetSampleFormat(astiav.SampleFormatS16)
	enc.frame.SetNbSamples(frameSamples)
	if err := enc.frame.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("alloc encoder frame buffer: %w", err)
	}

	if enc.packet = astiav.AllocPacket(); enc.packet == nil {
		return nil, errors.New("alloc encoder packet")
	}
	return enc, nil
}

func (e *opusEncoder) Close() {
	if e.packet != nil {
		e.packet.Free()
		e.packet = nil
	}
	if e.frame != nil {
		e.frame.Free()
		e.frame = nil
	}
	if e.cc != nil {
		e.cc.Free()
		e.cc = nil
	}
}

// Encode takes exactly one frame of PCM.
func (e *opusEncoder) Encode(pcm []byte, sink packetSink) error {
	if len(pcm) != frameBytes {
		return fmt.Errorf("pcm frame is %d bytes, want %d", len(pcm), frameBytes)
	}
	if err := e.frame.MakeWritable(); err != nil {
		return fmt.Errorf("encoder frame: %w", err)
	}
	if err := e.frame.Data().SetBytes(pcm, 0); err != nil {
		return fmt.Errorf("encoder frame: %w", err)
	}
	if err := e.cc.SendFrame(e.frame); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return e.receive(sink)
}

// Finish drains packets still held by libopus.
func (e *opusEncoder) Finish(sink packetSink) error {
	err := e.cc.SendFrame(nil)
	if errors.Is(err, astiav.ErrEof) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("flush encoder: %w", err)
	}
	return e.receive(sink)
}

func (e *opusEncoder) receive(sink packetSink) error {
	for {
		e.packet.Unref()
		err := e.cc.ReceivePacket(e.packet)
		switch {
		case errors.Is(err, astiav.ErrEagain), errors.Is(err, astiav.ErrEof):
			return nil
		case err != nil:
			return fmt.Errorf("receive packet: %w", err)
		}
		if !sink(e.packet.Data()) {
			return errSinkClosed
		}
	}
}
