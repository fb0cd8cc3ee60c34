package websocket

import (
	"time"

	"go.uber.org/zap"
)

const (
	reapInterval     = 5 * time.Minute
	defaultIdleGrace = 30 * time.Minute
)

// IdleReaper periodically closes connections that have not produced
// any traffic within the grace period. Recognition streams held by
// abandoned tabs would otherwise stay open indefinitely.
type IdleReaper struct {
	hub      *Hub
	grace    time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

// NewIdleReaper creates a reaper for the hub's connections
func NewIdleReaper(hub *Hub, grace time.Duration, logger *zap.Logger) *IdleReaper {
	if grace <= 0 {
		grace = defaultIdleGrace
	}
	return &IdleReaper{
		hub:      hub,
		grace:    grace,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background reaping process
func (r *IdleReaper) Start() {
	go r.reapLoop()
	r.logger.Info("Idle connection reaper started",
		zap.Duration("grace", r.grace))
}

// Stop gracefully stops the reaper
func (r *IdleReaper) Stop() {
	close(r.stopChan)
	r.logger.Info("Idle connection reaper stopped")
}

func (r *IdleReaper) reapLoop() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.reap()
		}
	}
}

func (r *IdleReaper) reap() {
	cutoff := time.Now().Add(-r.grace)

	r.hub.mu.RLock()
	stale := make([]*Client, 0)
	for _, client := range r.hub.clients {
		if client.LastActivity().Before(cutoff) {
			stale = append(stale, client)
		}
	}
	r.hub.mu.RUnlock()

	for _, client := range stale {
		r.logger.Info("Closing idle connection",
			zap.String("clientID", client.id),
			zap.String("userID", client.userID))
		// Closing the connection unwinds readPump, which unregisters
		// the client and tears its pipeline down.
		client.conn.Close()
	}
}
