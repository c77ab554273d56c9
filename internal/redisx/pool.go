// Package redisx wraps the redigo pool with the dial-retry and scripting
// conventions the rest of the core builds on.
package redisx

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
)

// Conn is the narrow slice of redigo's redis.Conn the core actually needs.
// Keeping it small makes it trivial to fake in unit tests.
type Conn interface {
	Do(commandName string, args ...interface{}) (reply interface{}, err error)
	Close() error
}

// Pool hands out pooled connections to the atomic store.
type Pool interface {
	Get() Conn
}

// RedigoPool adapts a *redis.Pool to Pool.
type RedigoPool struct {
	*redis.Pool
}

// Get returns a pooled connection.
func (p *RedigoPool) Get() Conn {
	return p.Pool.Get()
}

const (
	dialMaxRetries  = 3
	dialBaseBackoff = 200 * time.Millisecond
	dialMaxBackoff  = 2 * time.Second
)

// NewPool builds a redigo pool against addr, dialing eagerly (with bounded
// retry and exponential backoff) to fail fast if Redis is unreachable at
// startup.
func NewPool(ctx context.Context, addr, password string) (*RedigoPool, error) {
	pool := &redis.Pool{
		MaxIdle:         50,
		MaxActive:       500,
		IdleTimeout:     240 * time.Second,
		Wait:            true,
		MaxConnLifetime: 10 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return dialWithRetry(addr, password)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}

	p := &RedigoPool{Pool: pool}

	conn := p.Get()
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("redisx: initial ping failed: %w", err)
	}
	return p, nil
}

func dialWithRetry(addr, password string) (redis.Conn, error) {
	var lastErr error
	backoff := dialBaseBackoff
	for attempt := 0; attempt <= dialMaxRetries; attempt++ {
		opts := []redis.DialOption{
			redis.DialConnectTimeout(5 * time.Second),
			redis.DialReadTimeout(3 * time.Second),
			redis.DialWriteTimeout(3 * time.Second),
		}
		if password != "" {
			opts = append(opts, redis.DialPassword(password))
		}
		conn, err := redis.Dial("tcp", addr, opts...)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt == dialMaxRetries {
			break
		}
		slog.Warn("redisx: dial failed, retrying", "attempt", attempt+1, "backoff", backoff, "error", err)
		time.Sleep(backoff)
		backoff *= 2
		if backoff > dialMaxBackoff {
			backoff = dialMaxBackoff
		}
	}
	return nil, fmt.Errorf("redisx: dial failed after %d attempts: %w", dialMaxRetries+1, lastErr)
}

// ErrNil mirrors redigo's sentinel for a missing key, re-exported so callers
// don't need to import redigo directly.
var ErrNil = redis.ErrNil

// Eval runs a Lua script against conn, trying EVALSHA first and falling back
// to EVAL (and caching the script's SHA) on a NOSCRIPT reply.
func Eval(conn Conn, script string, keys []string, args ...interface{}) (interface{}, error) {
	sum := sha1.Sum([]byte(script))
	sha := hex.EncodeToString(sum[:])

	cmdArgs := make([]interface{}, 0, len(keys)+len(args)+2)
	cmdArgs = append(cmdArgs, sha, len(keys))
	for _, k := range keys {
		cmdArgs = append(cmdArgs, k)
	}
	cmdArgs = append(cmdArgs, args...)

	reply, err := conn.Do("EVALSHA", cmdArgs...)
	if err == nil {
		return reply, nil
	}
	if !isNoScript(err) {
		return nil, err
	}

	evalArgs := make([]interface{}, 0, len(keys)+len(args)+2)
	evalArgs = append(evalArgs, script, len(keys))
	for _, k := range keys {
		evalArgs = append(evalArgs, k)
	}
	evalArgs = append(evalArgs, args...)
	return conn.Do("EVAL", evalArgs...)
}

func isNoScript(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "NOSCRIPT")
}

// ErrUnavailable wraps any transport-level failure talking to the atomic
// store, distinguishing it from a logical rejection.
var ErrUnavailable = errors.New("redisx: atomic store unavailable")
