// Package udp sends motion snapshots as JSON datagrams.
package udp

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"motionhub/internal/motion"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type (
	resolveFunc func(network, address string) (*net.UDPAddr, error)
	dialFunc    func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)
)

// Broadcaster writes at most one snapshot datagram per interval.
type Broadcaster struct {
	dest     string
	conn     udpConn
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSent time.Time
	failing  bool
}

func NewBroadcaster(dest string, interval time.Duration) (*Broadcaster, error) {
	b, err := newBroadcaster(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		// DialUDP selects a suitable local address automatically.
		return net.DialUDP(network, laddr, raddr)
	})
	if err != nil {
		return nil, err
	}
	b.interval = interval
	return b, nil
}

func newBroadcaster(dest string, resolve resolveFunc, dial dialFunc) (*Broadcaster, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve dest: %w", err)
	}
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("udp: dial: %w", err)
	}
	return &Broadcaster{dest: dest, conn: conn, now: time.Now}, nil
}

func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	_, err := b.conn.Write(payload)
	return err
}

// Publish sends snap unless one went out less than an interval ago. It has
// the shape of a motion.Service update callback.
func (b *Broadcaster) Publish(snap motion.Snapshot) {
	if b == nil || b.conn == nil {
		return
	}
	now := b.now()
	b.mu.Lock()
	if b.interval > 0 && !b.lastSent.IsZero() && now.Sub(b.lastSent) < b.interval {
		b.mu.Unlock()
		return
	}
	b.lastSent = now
	b.mu.Unlock()

	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("udp: marshal snapshot: %v", err)
		return
	}
	err = b.Send(payload)

	// Log once per failure streak; the destination may come and go.
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil && !b.failing {
		log.Printf("udp: send to %s failed: %v", b.dest, err)
	}
	if err == nil && b.failing {
		log.Printf("udp: send to %s recovered", b.dest)
	}
	b.failing = err != nil
}

func (b *Broadcaster) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
