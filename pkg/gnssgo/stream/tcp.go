// Package stream provides stream input/output functionality for GNSS data
package stream

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Default TCP settings
const (
	defaultTcpPort = 8000
)

// DecodeTcpPath decodes TCP path
// path format: [address]:[port][#port]
func DecodeTcpPath(path string, addr, port, user, passwd, mntpnt, str *string) {
	var (
		buff string
		p    string
	)

	Tracet(4, "DecodeTcpPath: path=%s\n", path)

	buff = path

	// Parse address and port
	if i := strings.Index(buff, "@"); i >= 0 {
		// Extract user and password
		p = buff[:i]
		buff = buff[i+1:]

		// Extract user and password
		if j := strings.Index(p, ":"); j >= 0 {
			if user != nil {
				*user = p[:j]
			}
			if passwd != nil {
				*passwd = p[j+1:]
			}
		} else {
			if user != nil {
				*user = p
			}
		}
	}

	// Extract mountpoint
	if i := strings.Index(buff, "/"); i >= 0 {
		if mntpnt != nil {
			*mntpnt = buff[i+1:]
		}
		buff = buff[:i]
	}

	// Extract address and port
	if i := strings.LastIndex(buff, ":"); i >= 0 {
		if addr != nil {
			*addr = buff[:i]
		}
		if port != nil {
			*port = buff[i+1:]
		}
	} else {
		if addr != nil {
			*addr = buff
		}
	}

	// Extract mountpoint string
	if str != nil && mntpnt != nil {
		*str = *mntpnt
		if i := strings.Index(*str, ":"); i >= 0 {
			*str = (*str)[:i]
		}
	}
}

// OpenTcpSvr opens a TCP server
// path format: :port
func OpenTcpSvr(path string, msg *string) *TcpSvr {
	var (
		tcpsvr *TcpSvr = new(TcpSvr)
		sport  string
		port   int
	)

	Tracet(3, "OpenTcpSvr: path=%s\n", path)

	// Decode TCP path
	DecodeTcpPath(path, nil, &sport, nil, nil, nil, nil)

	// Parse port
	if len(sport) == 0 {
		port = defaultTcpPort
	} else {
		port, _ = strconv.Atoi(sport)
	}

	// Initialize TCP server
	tcpsvr.svr.state = 0
	tcpsvr.svr.port = port
	tcpsvr.svr.saddr = ""
	tcpsvr.svr.tcon = 0

	// Initialize client connections
	for i := 0; i < MAXCLI; i++ {
		tcpsvr.cli[i].state = 0
		tcpsvr.cli[i].sock = nil
	}

	// Create server socket
	addr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		if msg != nil {
			*msg = fmt.Sprintf("tcp address error: %s", err.Error())
		}
		return nil
	}

	// Create listener
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		if msg != nil {
			*msg = fmt.Sprintf("tcp listen error: %s", err.Error())
		}
		return nil
	}

	// Store the listener
	tcpsvr.svr.sock = listener
	tcpsvr.svr.state = 1

	return tcpsvr
}

// CloseTcpSvr closes a TCP server
func (tcpsvr *TcpSvr) CloseTcpSvr() {
	Tracet(3, "CloseTcpSvr:\n")

	if tcpsvr == nil {
		return
	}

	// Close client connections
	for i := 0; i < MAXCLI; i++ {
		if tcpsvr.cli[i].state > 0 && tcpsvr.cli[i].sock != nil {
			if conn, ok := tcpsvr.cli[i].sock.(net.Conn); ok {
				conn.Close()
			}
			tcpsvr.cli[i].sock = nil
			tcpsvr.cli[i].state = 0
		}
	}

	// Close server socket
	if tcpsvr.svr.sock != nil {
		if listener, ok := tcpsvr.svr.sock.(*net.TCPListener); ok {
			listener.Close()
		}
		tcpsvr.svr.sock = nil
	}
	tcpsvr.svr.state = 0
}

// Accept_nb accepts a non-blocking connection
func Accept_nb(listener *net.TCPListener) net.Conn {
	// Set a short deadline to make the accept non-blocking
	listener.SetDeadline(time.Now().Add(10 * time.Millisecond))

	// Try to accept a connection
	conn, err := listener.Accept()
	if err != nil {
		// Timeout or other error
		return nil
	}

	return conn
}

// ReadTcpSvr reads data from a TCP server
func (tcpsvr *TcpSvr) ReadTcpSvr(buff []byte, n int, msg *string) int {
	var (
		nr  int
		err error
		i   int
	)

	Tracet(4, "ReadTcpSvr: n=%d\n", n)

	if tcpsvr == nil {
		return 0
	}

	// Accept new client connections
	if tcpsvr.svr.state > 0 {
		// Find free client slot
		for i = 0; i < MAXCLI; i++ {
			if tcpsvr.cli[i].state == 0 {
				break
			}
		}
		if i < MAXCLI {
			// Accept connection
			if listener, ok := tcpsvr.svr.sock.(*net.TCPListener); ok {
				conn := Accept_nb(listener)
				if conn != nil {
					// Connection accepted
					tcpsvr.cli[i].sock = conn
					tcpsvr.cli[i].state = 1
					tcpsvr.cli[i].tact = int64(TickGet())
				}
			}
		}
	}

	// Read data from clients
	for i = 0; i < MAXCLI; i++ {
		if tcpsvr.cli[i].state == 0 || tcpsvr.cli[i].sock == nil {
			continue
		}

		// Get the connection
		conn, ok := tcpsvr.cli[i].sock.(net.Conn)
		if !ok {
			tcpsvr.cli[i].sock = nil
			tcpsvr.cli[i].state = 0
			continue
		}

		// Set read deadline
		conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))

		// Read data
		nr, err = conn.Read(buff[:n])
		if err != nil {
			// Handle connection error
			conn.Close()
			tcpsvr.cli[i].sock = nil
			tcpsvr.cli[i].state = 0
			continue
		}

		// Update activity time
		if nr > 0 {
			tcpsvr.cli[i].tact = int64(TickGet())
			return nr
		}
	}

	return 0
}

// WriteTcpSvr writes data to a TCP server
func (tcpsvr *TcpSvr) WriteTcpSvr(buff []byte, n int, msg *string) int {
	var (
		i, ns int
		err   error
	)

	Tracet(4, "WriteTcpSvr: n=%d\n", n)

	if tcpsvr == nil {
		return 0
	}

	// Write data to all clients
	for i = 0; i < MAXCLI; i++ {
		if tcpsvr.cli[i].state == 0 || tcpsvr.cli[i].sock == nil {
			continue
		}

		// Get the connection
		conn, ok := tcpsvr.cli[i].sock.(net.Conn)
		if !ok {
			tcpsvr.cli[i].sock = nil
			tcpsvr.cli[i].state = 0
			continue
		}

		// Set write deadline
		conn.SetWriteDeadline(time.Now().Add(1 * time.Second))

		// Write data
		ns, err = conn.Write(buff[:n])
		if err != nil {
			// Handle connection error
			conn.Close()
			tcpsvr.cli[i].sock = nil
			tcpsvr.cli[i].state = 0
			continue
		}

		// Update activity time
		if ns > 0 {
			tcpsvr.cli[i].tact = int64(TickGet())
		}
	}

	return n
}

// StateXTcpSvr returns the state of a TCP server
func (tcpsvr *TcpSvr) StateXTcpSvr(msg *string) int {
	var (
		state int
		i     int
	)

	if tcpsvr == nil {
		return 0
	}

	// Count active client connections
	state = tcpsvr.svr.state
	for i = 0; i < MAXCLI; i++ {
		if tcpsvr.cli[i].state > 0 {
			state++
		}
	}
	return state
}
