package simradio

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/backkem/attendbeacon/pkg/radio"
	"github.com/pion/transport/v3/test"
)

// Condition simulates an imperfect radio link.
type Condition struct {
	// DropRate is the probability of losing a frame (0.0 - 1.0).
	DropRate float64

	// DuplicateRate is the probability of receiving a frame twice (0.0 - 1.0).
	DuplicateRate float64

	// DelayMin and DelayMax bound a uniformly distributed delivery delay.
	DelayMin time.Duration
	DelayMax time.Duration

	// Jitter adds a uniformly distributed offset in [-Jitter, +Jitter] dB to
	// the received signal strength of each frame.
	Jitter int
}

// Link is a bidirectional radio path between two devices, carried over a
// pion test bridge. The bridge is ticked in the background.
// Methods are safe for concurrent use.
type Link struct {
	bridge *test.Bridge
	ends   [2]*Device

	mu        sync.RWMutex
	rssi      int
	condition Condition
	rng       *rand.Rand
	closed    bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newLink(a, b *Device, rssi int, tick time.Duration) *Link {
	l := &Link{
		bridge: test.NewBridge(),
		ends:   [2]*Device{a, b},
		rssi:   rssi,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh: make(chan struct{}),
	}

	l.wg.Add(3)
	go l.tickLoop(tick)
	go l.readLoop(l.bridge.GetConn1(), b, a)
	go l.readLoop(l.bridge.GetConn0(), a, b)
	return l
}

// RSSI returns the signal strength, in dBm, of a TxPowerHigh broadcast
// received over the link.
func (l *Link) RSSI() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rssi
}

// SetRSSI moves the two devices closer or further apart.
func (l *Link) SetRSSI(rssi int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rssi = rssi
}

// SetCondition configures loss, duplication, delay and jitter.
func (l *Link) SetCondition(cond Condition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.condition = cond
}

// Condition returns the current link condition.
func (l *Link) Condition() Condition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.condition
}

// Close stops delivery and closes both bridge ends.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.stopCh)
	l.mu.Unlock()

	var firstErr error
	for _, c := range []net.Conn{l.bridge.GetConn0(), l.bridge.GetConn1()} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.wg.Wait()
	return firstErr
}

// conn returns the bridge end owned by d.
func (l *Link) conn(d *Device) net.Conn {
	if l.ends[0] == d {
		return l.bridge.GetConn0()
	}
	return l.bridge.GetConn1()
}

// send transmits frame from d to the other end, applying the link condition.
func (l *Link) send(d *Device, frame []byte) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	cond := l.condition
	drop := cond.DropRate > 0 && l.rng.Float64() < cond.DropRate
	dup := cond.DuplicateRate > 0 && l.rng.Float64() < cond.DuplicateRate
	var delay time.Duration
	if cond.DelayMax > cond.DelayMin {
		delay = cond.DelayMin + time.Duration(l.rng.Int63n(int64(cond.DelayMax-cond.DelayMin)))
	} else {
		delay = cond.DelayMin
	}
	l.mu.Unlock()

	if drop {
		return
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-l.stopCh:
			return
		}
	}

	c := l.conn(d)
	if _, err := c.Write(frame); err != nil {
		return
	}
	if dup {
		c.Write(frame)
	}
}

// tickLoop moves queued frames across the bridge. It must stop before the
// bridge ends are closed.
func (l *Link) tickLoop(interval time.Duration) {
	defer l.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.mu.RLock()
			if !l.closed {
				l.bridge.Tick()
			}
			l.mu.RUnlock()
		}
	}
}

// readLoop receives frames on c and hands them to dst as observations from src.
func (l *Link) readLoop(c net.Conn, dst, src *Device) {
	defer l.wg.Done()
	buf := make([]byte, 512)

	for {
		n, err := c.Read(buf)
		if err != nil {
			return
		}
		ad, err := unmarshalFrame(buf[:n])
		if err != nil {
			continue
		}
		dst.receive(src, ad, l.sample(ad))
	}
}

// sample returns the signal strength for one received frame.
func (l *Link) sample(ad radio.Advertisement) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	rssi := l.rssi - ad.TxPower.Attenuation()
	if j := l.condition.Jitter; j > 0 {
		rssi += l.rng.Intn(2*j+1) - j
	}
	return rssi
}
