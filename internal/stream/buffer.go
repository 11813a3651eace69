package stream

import (
	"context"
	"sync"
	"time"
)

// packetBuffer is a bounded FIFO of encoded packets sitting between the
// decoding producer and the voice sender.
type packetBuffer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	packets []bufferedPacket
	max     int
	closed  bool
	eos     bool
}

type bufferedPacket struct {
	data []byte
	// media position of the packet's first sample
	pos time.Duration
}

func newPacketBuffer(maxPackets int) *packetBuffer {
	b := &packetBuffer{max: maxPackets}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push blocks while the buffer is full. It returns false once the buffer is
// closed or ctx is done.
func (b *packetBuffer) Push(ctx context.Context, data []byte, pos time.Duration) bool {
	stop := context.AfterFunc(ctx, b.wake)
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.packets) >= b.max && !b.closed && !b.eos && ctx.Err() == nil {
		b.cond.Wait()
	}
	if b.closed || b.eos || ctx.Err() != nil {
		return false
	}
	b.packets = append(b.packets, bufferedPacket{data: append([]byte(nil), data...), pos: pos})
	b.cond.Broadcast()
	return true
}

// Pop blocks until a packet is available. It returns false when the stream
// ended and everything was consumed, the buffer was closed or ctx is done.
func (b *packetBuffer) Pop(ctx context.Context) (bufferedPacket, bool) {
	stop := context.AfterFunc(ctx, b.wake)
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.packets) == 0 && !b.closed && !b.eos && ctx.Err() == nil {
		b.cond.Wait()
	}
	if b.closed || ctx.Err() != nil || len(b.packets) == 0 {
		return bufferedPacket{}, false
	}
	pkt := b.packets[0]
	b.packets[0] = bufferedPacket{}
	b.packets = b.packets[1:]
	b.cond.Broadcast()
	return pkt, true
}

// WaitFill blocks until n packets are buffered, the stream ended or the
// timeout elapses. It reports whether playback should go on.
func (b *packetBuffer) WaitFill(ctx context.Context, n int, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, b.wake)
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.packets) < n && !b.closed && !b.eos && ctx.Err() == nil {
		b.cond.Wait()
	}
	return !b.closed && (len(b.packets) > 0 || !b.eos)
}

func (b *packetBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.packets)
}

// Flush drops everything buffered.
func (b *packetBuffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.packets = nil
	b.cond.Broadcast()
}

// MarkEOS lets Pop drain what is left and then report the end.
func (b *packetBuffer) MarkEOS() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eos = true
	b.cond.Broadcast()
}

func (b *packetBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

func (b *packetBuffer) wake() {
	b.mu.Lock()
	b.cond.Broadcast()
	b.mu.Unlock()
}
