package services

import (
	"context"
	"time"

	"auction-settlement/internal/domain"
	"auction-settlement/pkg/logger"
)

// Consumer subscribes a handler to the inbound channels. With an election it
// first waits to become leader and stops consuming when leadership is lost.
type Consumer struct {
	subscriber    domain.Subscriber
	election      domain.LeaderElection
	instanceID    string
	retryInterval time.Duration
	channels      []string
	handler       domain.MessageHandler
	log           logger.Logger
}

func NewConsumer(
	subscriber domain.Subscriber,
	election domain.LeaderElection,
	instanceID string,
	retryInterval time.Duration,
	handler domain.MessageHandler,
	log logger.Logger,
	channels ...string,
) *Consumer {
	return &Consumer{
		subscriber:    subscriber,
		election:      election,
		instanceID:    instanceID,
		retryInterval: retryInterval,
		channels:      channels,
		handler:       handler,
		log:           log,
	}
}

// Run blocks until ctx is done (returning nil) or leadership is lost
// (returning domain.ErrLeadershipLost).
func (c *Consumer) Run(ctx context.Context) error {
	if c.election == nil {
		return c.subscriber.Subscribe(ctx, c.handler, c.channels...)
	}

	if !c.awaitLeadership(ctx) {
		return nil
	}
	defer c.release()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lost := make(chan struct{})
	go func() {
		select {
		case <-c.election.Lost():
			close(lost)
			cancel()
		case <-subCtx.Done():
		}
	}()

	err := c.subscriber.Subscribe(subCtx, c.handler, c.channels...)
	select {
	case <-lost:
		c.log.Error("Stopped consuming after losing leadership", "instance_id", c.instanceID)
		return domain.ErrLeadershipLost
	default:
	}
	return err
}

func (c *Consumer) awaitLeadership(ctx context.Context) bool {
	for {
		became, err := c.election.BecomeLeader(ctx, c.instanceID)
		if err != nil {
			c.log.Error("Failed to attempt leadership", "error", err)
		}
		if became {
			c.log.Info("Became settlement leader", "instance_id", c.instanceID)
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.retryInterval):
		}
	}
}

func (c *Consumer) release() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.election.ReleaseLeadership(ctx, c.instanceID); err != nil {
		c.log.Error("Failed to release leadership", "error", err)
	}
}
