// Package redisxtest provides a minimal in-memory fake of the atomic store
// for unit tests, so package tests never need a live Redis. It implements
// just enough of the Redis command surface — and the specific Lua scripts
// the core ships — to exercise redisx.Conn/redisx.Pool callers
// deterministically.
package redisxtest

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/flashsale/core/internal/redisx"
)

// Store is the shared in-memory backing state behind a Pool's connections.
type Store struct {
	mu      sync.Mutex
	strs    map[string]string
	hashes  map[string]map[string]string
	scripts map[string]string // sha1 hex -> script body
}

// NewStore builds an empty Store.
func NewStore() *Store {
	return &Store{
		strs:    make(map[string]string),
		hashes:  make(map[string]map[string]string),
		scripts: make(map[string]string),
	}
}

// Pool hands out Conns sharing one Store, simulating a connection pool
// against a single Redis instance.
type Pool struct {
	store *Store
}

// NewPool builds a Pool backed by a fresh Store.
func NewPool() *Pool {
	return &Pool{store: NewStore()}
}

// Get satisfies redisx.Pool.
func (p *Pool) Get() redisx.Conn {
	return &Conn{store: p.store}
}

// Conn satisfies redisx.Conn against the shared Store.
type Conn struct {
	store  *Store
	closed bool
}

// Close satisfies redisx.Conn.
func (c *Conn) Close() error {
	c.closed = true
	return nil
}

// Do dispatches a minimal command set plus EVAL/EVALSHA for the scripts the
// core ships.
func (c *Conn) Do(cmd string, args ...interface{}) (interface{}, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	switch strings.ToUpper(cmd) {
	case "PING":
		return "PONG", nil

	case "GET":
		key := argString(args[0])
		v, ok := s.strs[key]
		if !ok {
			return nil, nil
		}
		return []byte(v), nil

	case "SET":
		key := argString(args[0])
		s.strs[key] = argString(args[1])
		return "OK", nil

	case "DECR":
		key := argString(args[0])
		n, _ := strconv.Atoi(s.strs[key])
		n--
		s.strs[key] = strconv.Itoa(n)
		return int64(n), nil

	case "EXISTS":
		key := argString(args[0])
		if _, ok := s.strs[key]; ok {
			return int64(1), nil
		}
		return int64(0), nil

	case "DEL":
		key := argString(args[0])
		_, hadStr := s.strs[key]
		_, hadHash := s.hashes[key]
		delete(s.strs, key)
		delete(s.hashes, key)
		if hadStr || hadHash {
			return int64(1), nil
		}
		return int64(0), nil

	case "HGET":
		key, field := argString(args[0]), argString(args[1])
		h, ok := s.hashes[key]
		if !ok {
			return nil, nil
		}
		v, ok := h[field]
		if !ok {
			return nil, nil
		}
		return []byte(v), nil

	case "HSET":
		key, field, value := argString(args[0]), argString(args[1]), argString(args[2])
		h := s.hashMap(key)
		_, existed := h[field]
		h[field] = value
		if existed {
			return int64(0), nil
		}
		return int64(1), nil

	case "HSETNX":
		key, field, value := argString(args[0]), argString(args[1]), argString(args[2])
		h := s.hashMap(key)
		if _, existed := h[field]; existed {
			return int64(0), nil
		}
		h[field] = value
		return int64(1), nil

	case "HGETALL":
		key := argString(args[0])
		h := s.hashes[key]
		out := make([]interface{}, 0, len(h)*2)
		for k, v := range h {
			out = append(out, []byte(k), []byte(v))
		}
		return out, nil

	case "HLEN":
		key := argString(args[0])
		return int64(len(s.hashes[key])), nil

	case "EVALSHA":
		sha := argString(args[0])
		script, ok := s.scripts[sha]
		if !ok {
			return nil, fmt.Errorf("NOSCRIPT No matching script. Please use EVAL.")
		}
		return s.runScript(script, args[1:])

	case "EVAL":
		script := argString(args[0])
		sum := sha1.Sum([]byte(script))
		s.scripts[hex.EncodeToString(sum[:])] = script
		return s.runScript(script, args[1:])

	default:
		return nil, fmt.Errorf("redisxtest: unsupported command %q", cmd)
	}
}

func (s *Store) hashMap(key string) map[string]string {
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	return h
}

// runScript dispatches on content markers unique to each of the core's
// shipped scripts, since this fake cannot execute real Lua. args is
// numkeys, keys..., then script ARGV.
func (s *Store) runScript(script string, args []interface{}) (interface{}, error) {
	numKeys, _ := strconv.Atoi(argString(args[0]))
	keys := make([]string, numKeys)
	for i := 0; i < numKeys; i++ {
		keys[i] = argString(args[1+i])
	}
	argv := args[1+numKeys:]

	switch {
	case strings.Contains(script, "ledger_key"):
		return s.runPurchaseScript(keys, argv)
	case strings.Contains(script, "redis.call('EXISTS'"):
		return s.runInitScript(keys, argv)
	case strings.Contains(script, "redis.call('DECR', key)"):
		return s.runDecrScript(keys, argv)
	default:
		return nil, fmt.Errorf("redisxtest: unrecognized script")
	}
}

func (s *Store) runInitScript(keys []string, argv []interface{}) (interface{}, error) {
	key := keys[0]
	total := argString(argv[0])
	if _, ok := s.strs[key]; ok {
		return int64(0), nil
	}
	s.strs[key] = total
	return int64(1), nil
}

func (s *Store) runDecrScript(keys []string, argv []interface{}) (interface{}, error) {
	key := keys[0]
	current, ok := s.strs[key]
	if !ok {
		return []interface{}{int64(0), int64(-1)}, nil
	}
	n, _ := strconv.Atoi(current)
	if n <= 0 {
		return []interface{}{int64(0), int64(0)}, nil
	}
	n--
	s.strs[key] = strconv.Itoa(n)
	return []interface{}{int64(1), int64(n)}, nil
}

func (s *Store) runPurchaseScript(keys []string, argv []interface{}) (interface{}, error) {
	stockKey, ledgerKey := keys[0], keys[1]
	userID, nowISO := argString(argv[0]), argString(argv[1])

	h := s.hashMap(ledgerKey)
	if existing, ok := h[userID]; ok {
		return []interface{}{int64(0), []byte(existing)}, nil
	}

	stockStr, ok := s.strs[stockKey]
	if !ok {
		return []interface{}{int64(2), []byte("0")}, nil
	}
	stock, _ := strconv.Atoi(stockStr)
	if stock <= 0 {
		return []interface{}{int64(2), []byte("0")}, nil
	}

	stock--
	s.strs[stockKey] = strconv.Itoa(stock)
	h[userID] = nowISO
	return []interface{}{int64(1), []byte(strconv.Itoa(stock))}, nil
}

func argString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprintf("%v", x)
	}
}
