package ingest

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Pool owns one Client per active upstream source.
type Pool struct {
	onData DataFunc
	posFn  PositionFunc
	logger logrus.FieldLogger

	mu      sync.Mutex
	clients map[int]*Client
}

// NewPool creates an empty ingest Pool. onData is invoked with every
// source's raw bytes as they arrive; posFn supplies the GGA keepalive
// position per source.
func NewPool(onData DataFunc, posFn PositionFunc, logger logrus.FieldLogger) *Pool {
	return &Pool{
		onData:  onData,
		posFn:   posFn,
		logger:  logger,
		clients: make(map[int]*Client),
	}
}

// AddSource starts a new Client for src, replacing and stopping any
// existing one for the same source id.
func (p *Pool) AddSource(src Source) {
	p.mu.Lock()
	old, existed := p.clients[src.ID]
	c := NewClient(src, p.onData, p.posFn, p.logger)
	p.clients[src.ID] = c
	p.mu.Unlock()

	if existed {
		old.Stop()
	}
	c.Start()
}

// DelSource stops and removes sourceID's client, if any.
func (p *Pool) DelSource(sourceID int) {
	p.mu.Lock()
	c, ok := p.clients[sourceID]
	delete(p.clients, sourceID)
	p.mu.Unlock()
	if ok {
		c.Stop()
	}
}

// Connected reports whether sourceID currently has a live connection.
func (p *Pool) Connected(sourceID int) bool {
	p.mu.Lock()
	c, ok := p.clients[sourceID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	return c.Connected()
}

// Len returns the number of sources currently managed by the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Stop stops every client in the pool.
func (p *Pool) Stop() {
	p.mu.Lock()
	clients := make([]*Client, 0, len(p.clients))
	for _, c := range p.clients {
		clients = append(clients, c)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			c.Stop()
		}(c)
	}
	wg.Wait()
}
