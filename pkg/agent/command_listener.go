package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/gravito-framework/quasar-teradata/pkg/commands"
	"github.com/gravito-framework/quasar-teradata/pkg/types"
)

// CommandListener receives check requests for one agent node over the
// transport Redis and hands them to the registered executors.
type CommandListener struct {
	subscriber *redis.Client
	service    string
	nodeID     string
	logger     *slog.Logger
	executors  map[types.CommandType]commands.Executor
	isRunning  bool
	stopChan   chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex
}

// NewCommandListener creates a listener for nodeID of service
func NewCommandListener(
	subscriber *redis.Client,
	service string,
	nodeID string,
	logger *slog.Logger,
	executors ...commands.Executor,
) *CommandListener {
	cl := &CommandListener{
		subscriber: subscriber,
		service:    service,
		nodeID:     nodeID,
		logger:     logger,
		executors:  make(map[types.CommandType]commands.Executor),
		stopChan:   make(chan struct{}),
	}

	for _, e := range executors {
		cl.RegisterExecutor(e)
	}

	return cl
}

// RegisterExecutor replaces any executor for the same command type
func (cl *CommandListener) RegisterExecutor(executor commands.Executor) {
	cl.executors[executor.SupportedType()] = executor
}

// CommandChannel returns the channel a node listens on
func CommandChannel(service, nodeID string) string {
	return fmt.Sprintf("gravito:quasar:teradata:cmd:%s:%s", service, nodeID)
}

// Start subscribes to the node channel and serves requests until Stop or
// ctx is done
func (cl *CommandListener) Start(ctx context.Context) error {
	cl.mu.Lock()
	if cl.isRunning {
		cl.mu.Unlock()
		return fmt.Errorf("check request listener already running")
	}
	cl.isRunning = true
	cl.mu.Unlock()

	channel := CommandChannel(cl.service, cl.nodeID)

	pubsub := cl.subscriber.Subscribe(ctx, channel)

	// Receive returns once the subscription is confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		cl.mu.Lock()
		cl.isRunning = false
		cl.mu.Unlock()
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	cl.logger.Info("Listening for check requests", "channel", channel)

	cl.wg.Add(1)
	go cl.handleMessages(ctx, pubsub)

	return nil
}

// Stop waits for the in-flight request and closes the subscriber
func (cl *CommandListener) Stop(ctx context.Context) error {
	cl.mu.Lock()
	if !cl.isRunning {
		cl.mu.Unlock()
		return nil
	}
	cl.isRunning = false
	cl.mu.Unlock()

	close(cl.stopChan)
	cl.wg.Wait()

	if err := cl.subscriber.Close(); err != nil {
		return fmt.Errorf("failed to close subscriber: %w", err)
	}

	cl.logger.Info("Check request listener stopped")
	return nil
}

func (cl *CommandListener) handleMessages(ctx context.Context, pubsub *redis.PubSub) {
	defer cl.wg.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-cl.stopChan:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg == nil {
				continue
			}
			cl.processMessage(ctx, msg.Payload)
		}
	}
}

func (cl *CommandListener) processMessage(ctx context.Context, payload string) (types.CommandResult, bool) {
	var cmd types.QuasarCommand
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		cl.logger.Error("Discarding malformed check request", "error", err)
		return types.CommandResult{}, false
	}

	cl.logger.Info("Check request received",
		"type", cmd.Type,
		"id", cmd.ID,
		"target", cmd.TargetNodeID,
	)

	// Only RUN_CHECK is ever honoured
	if !cmd.Type.IsAllowed() {
		cl.logger.Warn("Rejecting command type", "type", cmd.Type)
		return types.CommandResult{CommandID: cmd.ID, Status: types.CommandNotAllowed}, false
	}

	// "*" addresses every node of the service
	if cmd.TargetNodeID != cl.nodeID && cmd.TargetNodeID != "*" {
		cl.logger.Debug("Ignoring request for another node", "target", cmd.TargetNodeID)
		return types.CommandResult{}, false
	}

	executor, ok := cl.executors[cmd.Type]
	if !ok {
		cl.logger.Warn("No executor registered", "type", cmd.Type)
		return types.CommandResult{}, false
	}

	result := executor.Execute(ctx, &cmd)

	if result.Status == types.CommandSuccess {
		cl.logger.Info("Check request accepted", "id", cmd.ID, "message", result.Message)
	} else {
		cl.logger.Warn("Check request refused", "id", cmd.ID, "message", result.Message)
	}
	return result, true
}
