package link

import (
	"context"
	"math/rand"
	"time"

	"github.com/1ureka/soundsight/internal/util"
)

// Supervisor keeps a Client connected: after every failed attempt it waits
// a backoff delay and connects again. The backoff resets once an attempt
// reaches Connected.
type Supervisor struct {
	client  *Client
	host    string
	port    int
	backoff BackoffConfig
	rng     *rand.Rand
}

func NewSupervisor(c *Client, host string, port int, backoff BackoffConfig) *Supervisor {
	return &Supervisor{
		client:  c,
		host:    host,
		port:    port,
		backoff: backoff,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run blocks until ctx is cancelled or the client is explicitly
// disconnected. On return the client is disconnected and its last attempt
// has finished.
func (s *Supervisor) Run(ctx context.Context) error {
	failures := 0
	for {
		if err := s.client.Connect(ctx, s.host, s.port); err != nil {
			return err
		}
		done := s.client.Done()

		select {
		case <-done:
		case <-ctx.Done():
			s.client.Disconnect()
			<-done
			return nil
		}

		if ctx.Err() != nil || s.client.State() == Disconnected {
			s.client.Disconnect()
			return nil
		}

		if s.client.lastAttemptConnected() {
			failures = 0
		}
		failures++

		delay := NextBackoffDelay(s.backoff, failures, s.rng)
		util.LogInfo("reconnecting to %s:%d in %s (attempt %d)", s.host, s.port, delay.Round(time.Millisecond), failures)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			s.client.Disconnect()
			return nil
		}

		if s.client.State() == Disconnected {
			return nil
		}
	}
}
