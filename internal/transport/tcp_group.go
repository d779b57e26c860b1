package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/graphshuffle/shuffle/pkg/compression"
)

// tcpGroup is a full-mesh TCP process group: every pair of ranks shares one
// persistent, full-duplex connection, established once at construction by a
// lower-rank-dials, higher-rank-accepts rendezvous over MasterAddr and a
// per-rank port (MasterPort+rank). This is the "host file" substrate named
// in the external-interfaces contract, made concrete.
type tcpGroup struct {
	rank      int
	worldSize int
	timeout   time.Duration
	codec     compression.Compressor

	mu    sync.Mutex
	conns map[int]net.Conn // peer rank -> connection
}

func newTCPGroup(ctx context.Context, cfg Config) (*tcpGroup, error) {
	if cfg.WorldSize < 1 {
		return nil, fmt.Errorf("transport: world size must be >= 1, got %d", cfg.WorldSize)
	}
	if cfg.Rank < 0 || cfg.Rank >= cfg.WorldSize {
		return nil, fmt.Errorf("transport: rank %d out of range [0, %d)", cfg.Rank, cfg.WorldSize)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	g := &tcpGroup{
		rank:      cfg.Rank,
		worldSize: cfg.WorldSize,
		timeout:   timeout,
		codec:     cfg.Codec,
		conns:     make(map[int]net.Conn, cfg.WorldSize-1),
	}

	if cfg.WorldSize == 1 {
		return g, nil
	}

	deadline := time.Now().Add(timeout)
	rctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var acceptWG sync.WaitGroup
	acceptErrs := make(chan error, cfg.WorldSize)
	numExpectedAccepts := cfg.Rank // peers with rank < us dial in

	if numExpectedAccepts > 0 {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.listenPort(cfg.Rank)))
		if err != nil {
			return nil, fmt.Errorf("transport: listen on rank %d port: %w", cfg.Rank, err)
		}
		defer ln.Close()

		acceptWG.Add(1)
		go func() {
			defer acceptWG.Done()
			for i := 0; i < numExpectedAccepts; i++ {
				conn, err := acceptWithContext(rctx, ln)
				if err != nil {
					acceptErrs <- err
					return
				}
				peerRank, err := readHandshake(conn)
				if err != nil {
					conn.Close()
					acceptErrs <- err
					return
				}
				g.mu.Lock()
				g.conns[peerRank] = conn
				g.mu.Unlock()
			}
		}()
	}

	for peer := cfg.Rank + 1; peer < cfg.WorldSize; peer++ {
		conn, err := dialWithRetry(rctx, fmt.Sprintf("%s:%d", cfg.MasterAddr, cfg.listenPort(peer)))
		if err != nil {
			return nil, fmt.Errorf("transport: dial rank %d: %w", peer, err)
		}
		if err := writeHandshake(conn, cfg.Rank); err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: handshake with rank %d: %w", peer, err)
		}
		g.mu.Lock()
		g.conns[peer] = conn
		g.mu.Unlock()
	}

	acceptWG.Wait()
	select {
	case err := <-acceptErrs:
		return nil, fmt.Errorf("transport: accept rendezvous: %w", err)
	default:
	}

	if len(g.conns) != cfg.WorldSize-1 {
		return nil, fmt.Errorf("transport: rendezvous incomplete, got %d/%d peer connections", len(g.conns), cfg.WorldSize-1)
	}

	return g, nil
}

func (g *tcpGroup) Rank() int      { return g.rank }
func (g *tcpGroup) WorldSize() int { return g.worldSize }

func (g *tcpGroup) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var firstErr error
	for _, c := range g.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (g *tcpGroup) peerConn(peer int) net.Conn {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conns[peer]
}

// broadcastGather sends the same kind/payload to every peer and returns
// each peer's reply payload, indexed by rank (own slot filled with self).
func (g *tcpGroup) broadcastGather(kind frameKind, self []byte, outgoing func(peer int) []byte) ([][]byte, error) {
	result := make([][]byte, g.worldSize)
	result[g.rank] = self

	var wg sync.WaitGroup
	errs := make(chan error, 2*(g.worldSize-1))

	for peer := 0; peer < g.worldSize; peer++ {
		if peer == g.rank {
			continue
		}
		conn := g.peerConn(peer)
		wg.Add(2)
		go func(peer int, conn net.Conn) {
			defer wg.Done()
			if err := writeFrame(conn, kind, g.rank, outgoing(peer)); err != nil {
				errs <- err
			}
		}(peer, conn)
		go func(peer int, conn net.Conn) {
			defer wg.Done()
			_, _, payload, err := readFrame(conn)
			if err != nil {
				errs <- err
				return
			}
			result[peer] = payload
		}(peer, conn)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// AllgatherSizes concatenates every peer's local vector, in rank order.
func (g *tcpGroup) AllgatherSizes(ctx context.Context, local []int64) ([]int64, error) {
	payload := encodeInt64s(local)
	received, err := g.broadcastGather(kindSizes, payload, func(int) []byte { return payload })
	if err != nil {
		return nil, fmt.Errorf("transport: allgather_sizes: %w", err)
	}
	var out []int64
	for _, buf := range received {
		out = append(out, decodeInt64s(buf)...)
	}
	return out, nil
}

// Barrier blocks until every peer has called Barrier.
func (g *tcpGroup) Barrier(ctx context.Context) error {
	_, err := g.broadcastGather(kindBarrier, nil, func(int) []byte { return nil })
	if err != nil {
		return fmt.Errorf("transport: barrier: %w", err)
	}
	return nil
}

// AllToAll sends send[i] to peer i and returns what each peer sent back.
// Preceded and followed by a barrier so upstream state is quiescent before
// and after any bulk exchange.
func (g *tcpGroup) AllToAll(ctx context.Context, send [][]byte) ([][]byte, error) {
	if len(send) != g.worldSize {
		return nil, fmt.Errorf("transport: alltoall expects %d buffers, got %d", g.worldSize, len(send))
	}
	if err := g.Barrier(ctx); err != nil {
		return nil, err
	}

	self := send[g.rank]
	result, err := g.broadcastGather(kindData, g.encode(self), func(peer int) []byte {
		return g.encode(send[peer])
	})
	if err != nil {
		return nil, fmt.Errorf("transport: alltoall: %w", err)
	}
	for i, buf := range result {
		decoded, err := g.decode(buf)
		if err != nil {
			return nil, fmt.Errorf("transport: alltoall decode from rank %d: %w", i, err)
		}
		result[i] = decoded
	}

	if err := g.Barrier(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

func (g *tcpGroup) encode(payload []byte) []byte {
	if g.codec == nil || len(payload) == 0 {
		return payload
	}
	compressed, err := g.codec.Compress(payload)
	if err != nil {
		// Fall back to the raw payload; the transport never fails a shuffle
		// over an optional throughput optimization.
		return payload
	}
	return compressed
}

func (g *tcpGroup) decode(payload []byte) ([]byte, error) {
	if g.codec == nil || len(payload) == 0 {
		return payload, nil
	}
	return g.codec.Decompress(payload)
}

func acceptWithContext(ctx context.Context, ln net.Listener) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- result{conn, err}
	}()
	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func dialWithRetry(ctx context.Context, addr string) (net.Conn, error) {
	var dialer net.Dialer
	backoff := 10 * time.Millisecond
	for {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < time.Second {
			backoff *= 2
		}
	}
}

// writeHandshake/readHandshake exchange the dialer's rank so the accepting
// side can file the new connection under the right peer slot.
func writeHandshake(conn net.Conn, rank int) error {
	return writeFrame(conn, kindBarrier, rank, nil)
}

func readHandshake(conn net.Conn) (int, error) {
	_, senderRank, _, err := readFrame(conn)
	return senderRank, err
}
