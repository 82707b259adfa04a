// Package stream provides stream input/output functionality for GNSS data
package stream

import (
	"net"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Stream types
const (
	STR_NONE   = 0 // No stream
	STR_SERIAL = 1 // Serial
)

// Stream modes
const (
	STR_MODE_R  = 0x1 // Read
	STR_MODE_W  = 0x2 // Write
	STR_MODE_RW = 0x3 // Read/Write
)

// Stream constants
const (
	MAXCLI = 32 // Max client connection for tcp svr
)

// Stream represents a generic stream
type Stream struct {
	Type        int        // Stream type
	Mode        int        // Stream mode
	State       int        // Stream state
	InBytes     uint32     // Bytes of input data
	InRate      uint32     // Input rate (bytes/sec)
	OutBytes    uint32     // Bytes of output data
	OutRate     uint32     // Output rate (bytes/sec)
	TickInput   uint32     // Tick of input
	TickOutput  uint32     // Tick of output
	TickActive  uint32     // Tick of active
	InByeTick   uint32     // Input bytes at tick
	OutByteTick uint32     // Output bytes at tick
	Path        string     // Stream path
	Msg         string     // Stream message
	Port        any        // Stream port
	Lock        sync.Mutex // Lock for thread safety
}

// TcpConn represents a TCP connection
type TcpConn struct {
	state int         // State (0:close,1:wait,2:connect)
	saddr string      // Address string
	port  int         // Port
	addr  net.Addr    // Address resolved
	sock  interface{} // Socket descriptor (net.Conn or *net.TCPListener)
	tcon  int         // Reconnect time (ms) (-1:never,0:now)
	tact  int64       // Data active tick
	tdis  int64       // Disconnect tick
}

// TcpSvr represents a TCP server
type TcpSvr struct {
	svr TcpConn         // TCP server control
	cli [MAXCLI]TcpConn // TCP client controls
}

// SerialComm represents a serial connection
type SerialComm struct {
	dev      int           // Serial device
	serialio serial.Port   // Serial port interface
	err      int           // Error state
	lock     sync.Mutex    // Lock flag for thread safety
	tcpsvr   *TcpSvr       // TCP server for received stream
	mode     *serial.Mode  // Serial port mode
	timeout  time.Duration // Read timeout
}
