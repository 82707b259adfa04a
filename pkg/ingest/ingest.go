// Package ingest is the NTRIP Ingest component: a pool of outbound TCP
// clients, one per upstream source, pulling RTCM3 bytes from a caster
// mountpoint with reconnect-with-backoff, and pushing a periodic NMEA
// GGA keepalive upstream.
package ingest

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bramburn/gnssgo/pkg/gnssgo/nmea"
	"github.com/sirupsen/logrus"
)

const (
	userAgent        = "gnssgo-cors NTRIP Client/1.0"
	ggaInterval      = 3 * time.Second
	dialTimeout      = 10 * time.Second
	baseRetryBackoff = 5 * time.Second
	maxRetryBackoff  = 5 * time.Minute
	readBufferSize   = 4096
)

// Source describes one upstream caster mountpoint to pull from.
type Source struct {
	ID         int
	Addr       string
	Port       int
	Mountpoint string
	User       string
	Passwd     string
}

// PositionFunc supplies the current rover position for a source's GGA
// keepalive, in (lat, lon radians, height meters, numSats, hdop).
type PositionFunc func(sourceID int) (lat, lon, height float64, numSats int, hdop float64, ok bool)

// DataFunc receives raw bytes read from the source, in arrival order.
type DataFunc func(sourceID int, data []byte)

// Client owns the connection lifecycle for a single Source:
// connect, authenticate, read loop, periodic GGA keepalive, and a
// reconnect-with-exponential-backoff loop on failure — grounded on
// pkg/server.Server's ctx.Done()/time.After reconnect loop, generalized
// from a push (caster-server) direction to a pull (caster-client) one.
type Client struct {
	source Source
	onData DataFunc
	posFn  PositionFunc
	logger logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	retryCount  int
	connected   bool

	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// NewClient creates a Client for source, not yet started.
func NewClient(source Source, onData DataFunc, posFn PositionFunc, logger logrus.FieldLogger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		source:      source,
		onData:      onData,
		posFn:       posFn,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		baseBackoff: baseRetryBackoff,
		maxBackoff:  maxRetryBackoff,
	}
}

// Start launches the client's reconnect loop in the background.
func (c *Client) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop cancels the client and waits for its goroutine to exit.
func (c *Client) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Connected reports whether the client currently holds a live connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		err := c.connectAndServe()
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"source": c.source.ID, "mountpoint": c.source.Mountpoint,
			}).WithError(err).Warn("NTRIP ingest connection lost")
		}

		backoff := c.nextBackoff()
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func (c *Client) nextBackoff() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := time.Duration(math.Pow(2, float64(c.retryCount))) * c.baseBackoff
	if d > c.maxBackoff {
		d = c.maxBackoff
	}
	c.retryCount++
	return d
}

func (c *Client) resetBackoff() {
	c.mu.Lock()
	c.retryCount = 0
	c.mu.Unlock()
}

// connectAndServe dials the caster, performs the NTRIP 1.x request/
// response handshake, and streams data until the connection drops.
func (c *Client) connectAndServe() error {
	addr := net.JoinHostPort(c.source.Addr, strconv.Itoa(c.source.Port))
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(c.ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if err := c.handshake(conn); err != nil {
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.resetBackoff()

	go c.closeOnCancel(conn)

	var keepaliveWg sync.WaitGroup
	keepaliveCtx, stopKeepalive := context.WithCancel(c.ctx)
	keepaliveWg.Add(1)
	go func() {
		defer keepaliveWg.Done()
		c.keepalive(keepaliveCtx, conn)
	}()
	defer func() {
		stopKeepalive()
		keepaliveWg.Wait()
	}()

	return c.readLoop(conn)
}

func (c *Client) closeOnCancel(conn net.Conn) {
	<-c.ctx.Done()
	conn.Close()
}

// handshake writes the NTRIP 1.x request line and reads the status
// line, accepting the legacy "ICY 200 OK" reply or a standard
// "HTTP/1.x 200 OK" (spec.md §6).
func (c *Client) handshake(conn net.Conn) error {
	var req strings.Builder
	fmt.Fprintf(&req, "GET /%s HTTP/1.0\r\n", c.source.Mountpoint)
	fmt.Fprintf(&req, "User-Agent: %s\r\n", userAgent)
	if c.source.User != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(c.source.User + ":" + c.source.Passwd))
		fmt.Fprintf(&req, "Authorization: Basic %s\r\n", cred)
	}
	req.WriteString("\r\n")

	if _, err := conn.Write([]byte(req.String())); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(dialTimeout))
	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read status line: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	status = strings.TrimSpace(status)
	if !strings.Contains(status, "200") {
		return fmt.Errorf("ntrip handshake rejected: %s", status)
	}

	return nil
}

func (c *Client) readLoop(conn net.Conn) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			c.onData(c.source.ID, buf[:n])
		}
		if err != nil {
			return err
		}
	}
}

// keepalive sends a GGA position update every 3 seconds (spec.md §6),
// using whatever position posFn currently reports; it is a no-op tick
// if no position is yet available.
func (c *Client) keepalive(ctx context.Context, conn net.Conn) {
	ticker := time.NewTicker(ggaInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.posFn == nil {
				continue
			}
			lat, lon, height, numSats, hdop, ok := c.posFn(c.source.ID)
			if !ok {
				continue
			}
			// posFn reports radians; FormatGGA takes degrees
			sentence := nmea.FormatGGA(time.Now().UTC(), lat*180/math.Pi, lon*180/math.Pi, height, 1, numSats, hdop)
			if _, err := conn.Write([]byte(sentence + "\r\n")); err != nil {
				return
			}
		}
	}
}
