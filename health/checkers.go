package health

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// ConnectionStatus reports whether the broker connection is live
type ConnectionStatus interface {
	IsConnected() bool
}

// RabbitMQChecker reports the broker connection state. It never dials.
type RabbitMQChecker struct {
	conn ConnectionStatus
}

func NewRabbitMQChecker(conn ConnectionStatus) *RabbitMQChecker {
	return &RabbitMQChecker{conn: conn}
}

func (c *RabbitMQChecker) Name() string {
	return "rabbitmq"
}

func (c *RabbitMQChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   map[string]any{},
	}

	connected := c.conn.IsConnected()
	result.Details["connected"] = connected
	if connected {
		result.Status = StatusHealthy
		result.Message = "connection is open"
	} else {
		result.Status = StatusUnhealthy
		result.Message = "no open connection"
	}

	result.Duration = time.Since(start)
	return result
}

// Pinger is satisfied by *pgxpool.Pool
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseChecker pings the order store database
type DatabaseChecker struct {
	db Pinger
}

func NewDatabaseChecker(db Pinger) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (c *DatabaseChecker) Name() string {
	return "database"
}

func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
	}

	if err := c.db.Ping(ctx); err != nil {
		result.Status = StatusUnhealthy
		result.Message = "ping failed"
		result.Error = err.Error()
	} else {
		result.Status = StatusHealthy
		result.Message = "database reachable"
	}

	result.Duration = time.Since(start)
	return result
}

// GoroutineChecker degrades when the goroutine count passes warn and fails
// past critical.
type GoroutineChecker struct {
	warn     int
	critical int
}

func NewGoroutineChecker(warn, critical int) *GoroutineChecker {
	return &GoroutineChecker{warn: warn, critical: critical}
}

func (c *GoroutineChecker) Name() string {
	return "goroutines"
}

func (c *GoroutineChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	n := runtime.NumGoroutine()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   map[string]any{"goroutines": n},
	}

	switch {
	case n > c.critical:
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("too many goroutines: %d", n)
	case n > c.warn:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("high goroutine count: %d", n)
	default:
		result.Status = StatusHealthy
	}

	result.Duration = time.Since(start)
	return result
}
