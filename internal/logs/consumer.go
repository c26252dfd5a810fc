// Package logs persists dispatcher operation logs and streams them to UI clients.
package logs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	arborlevels "github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
)

// Consumer consumes log batches from arbor's context channel and dispatches to storage and events
type Consumer struct {
	storage       interfaces.OperationLogStorage
	eventService  interfaces.EventService
	logger        arbor.ILogger
	channel       chan []arbormodels.LogEvent
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	minEventLevel arbor.LogLevel // Minimum log level to publish as events
}

// NewConsumer creates a new log consumer
func NewConsumer(storage interfaces.OperationLogStorage, eventService interfaces.EventService, logger arbor.ILogger, minEventLevel string) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		storage:       storage,
		eventService:  eventService,
		logger:        logger,
		channel:       make(chan []arbormodels.LogEvent, 10),
		ctx:           ctx,
		cancel:        cancel,
		minEventLevel: parseLogLevel(minEventLevel),
	}
}

// parseLogLevel converts string log level to arbor.LogLevel
func parseLogLevel(levelStr string) arbor.LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return arbor.DebugLevel
	case "info":
		return arbor.InfoLevel
	case "warn", "warning":
		return arbor.WarnLevel
	case "error":
		return arbor.ErrorLevel
	default:
		return arbor.InfoLevel
	}
}

// convertTo3Letter converts full level names to 3-letter codes
func convertTo3Letter(level string) string {
	switch strings.ToUpper(level) {
	case "INFO":
		return "INF"
	case "WARN", "WARNING":
		return "WRN"
	case "ERROR":
		return "ERR"
	case "DEBUG":
		return "DBG"
	default:
		if len(level) == 3 {
			return strings.ToUpper(level)
		}
		return "INF"
	}
}

// GetChannel returns the channel for arbor to send log batches to
func (c *Consumer) GetChannel() chan []arbormodels.LogEvent {
	return c.channel
}

// Start launches the consumer goroutine
func (c *Consumer) Start() error {
	c.wg.Add(1)
	go c.consumer()
	return nil
}

// Stop gracefully shuts down the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info().Msg("Log consumer stopped")
	return nil
}

func (c *Consumer) consumer() {
	defer c.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			// Logger without correlation ID, so this line never re-enters the channel
			c.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("LogConsumer panic recovered")
		}
	}()

	for {
		select {
		case batch, ok := <-c.channel:
			if !ok {
				return
			}
			c.processBatch(batch)

		case <-c.ctx.Done():
			return
		}
	}
}

// processBatch stores correlated entries grouped by operation and publishes
// those at or above the event threshold
func (c *Consumer) processBatch(batch []arbormodels.LogEvent) {
	entriesByOperation := make(map[string][]models.OperationLogEntry)

	for _, event := range batch {
		// HTTP middleware correlates requests for tracing; those are not operation logs
		if event.Message == "HTTP request" ||
			event.Message == "HTTP request - client error" ||
			event.Message == "HTTP request - server error" ||
			strings.Contains(event.Message, "WebSocket client") {
			continue
		}
		if event.CorrelationID == "" {
			continue
		}

		entry := transformEvent(event)
		entriesByOperation[event.CorrelationID] = append(entriesByOperation[event.CorrelationID], entry)

		if c.eventService != nil && c.shouldPublishEvent(event.Level) {
			c.publishLogEvent(entry)
		}
	}

	for operationID, entries := range entriesByOperation {
		if err := c.storage.AppendLogs(c.ctx, operationID, entries); err != nil {
			c.logger.Warn().
				Err(err).
				Str("operation_id", operationID).
				Int("log_count", len(entries)).
				Msg("Failed to write operation logs")
		}
	}
}

// shouldPublishEvent checks if a log event should be published based on level threshold
func (c *Consumer) shouldPublishEvent(level log.Level) bool {
	eventLevel := arborlevels.FromLogLevel(level)
	return eventLevel >= c.minEventLevel
}

// publishLogEvent streams one entry to UI subscribers
func (c *Consumer) publishLogEvent(entry models.OperationLogEntry) {
	payload := map[string]interface{}{
		"operation_id": entry.OperationID,
		"level":        entry.Level,
		"message":      entry.Message,
		"timestamp":    entry.Timestamp,
	}
	if entry.Operation != "" {
		payload["operation"] = entry.Operation
	}
	if entry.AccountID != "" {
		payload["account_id"] = entry.AccountID
	}
	if entry.Domain != "" {
		payload["domain"] = entry.Domain
	}

	err := c.eventService.Publish(c.ctx, interfaces.Event{
		Type:    interfaces.EventOperationLog,
		Payload: payload,
	})
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("operation_id", entry.OperationID).
			Msg("Failed to publish log event")
	}
}

// transformEvent converts an arbor LogEvent to an OperationLogEntry, lifting the
// operation, account_id and domain fields out of the message
func transformEvent(event arbormodels.LogEvent) models.OperationLogEntry {
	entry := models.OperationLogEntry{
		Timestamp:     event.Timestamp.Format("15:04:05"),
		FullTimestamp: event.Timestamp.Format(time.RFC3339Nano),
		Level:         convertTo3Letter(event.Level.String()),
		OperationID:   event.CorrelationID,
	}

	message := event.Message
	for key, value := range event.Fields {
		switch key {
		case "operation":
			entry.Operation = fmt.Sprintf("%v", value)
		case "account_id":
			entry.AccountID = fmt.Sprintf("%v", value)
		case "domain":
			entry.Domain = fmt.Sprintf("%v", value)
		default:
			message += fmt.Sprintf(" %s=%v", key, value)
		}
	}
	entry.Message = message
	return entry
}
