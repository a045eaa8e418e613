package node

import (
	"errors"
	"net"
	"time"
)

// acceptLoop accepts connections until the listener is closed. Each
// connection is handled on its own goroutine once a handler slot is free,
// which bounds the number of connections serviced at once.
func (n *Node) acceptLoop(name string, ln net.Listener, handler func(conn net.Conn)) {
	defer n.wg.Done()

	n.evHandler("node: acceptLoop: %s: G started: addr[%s]", name, ln.Addr())
	defer n.evHandler("node: acceptLoop: %s: G completed", name)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if n.isShutdown() || errors.Is(err, net.ErrClosed) {
				return
			}

			n.evHandler("node: acceptLoop: %s: WARNING: %s", name, err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		// Wait for a free handler slot.
		select {
		case n.sem <- struct{}{}:
		case <-n.shut:
			conn.Close()
			return
		}

		n.trackConn(conn)

		n.wg.Add(1)
		go func() {
			defer func() {
				n.untrackConn(conn)
				conn.Close()
				<-n.sem
				n.wg.Done()
			}()

			// A bug in the handling of one connection must not take
			// down the node.
			defer func() {
				if r := recover(); r != nil {
					n.evHandler("node: acceptLoop: %s: PANIC: remote[%s]: %v", name, conn.RemoteAddr(), r)
				}
			}()

			handler(conn)
		}()
	}
}

// isShutdown is used to test if a shutdown has been signaled.
func (n *Node) isShutdown() bool {
	select {
	case <-n.shut:
		return true
	default:
		return false
	}
}

func (n *Node) trackConn(conn net.Conn) {
	n.connMu.Lock()
	defer n.connMu.Unlock()

	n.conns[conn] = struct{}{}

	// A connection accepted while stopping is interrupted at once.
	if n.isShutdown() {
		conn.SetReadDeadline(time.Now())
	}
}

func (n *Node) untrackConn(conn net.Conn) {
	n.connMu.Lock()
	defer n.connMu.Unlock()

	delete(n.conns, conn)
}

// interruptConns unblocks every handler waiting on a read.
func (n *Node) interruptConns() {
	n.connMu.Lock()
	defer n.connMu.Unlock()

	for conn := range n.conns {
		conn.SetReadDeadline(time.Now())
	}
}

// closeConns closes every open connection.
func (n *Node) closeConns() {
	n.connMu.Lock()
	defer n.connMu.Unlock()

	for conn := range n.conns {
		conn.Close()
	}
}
