package cooldown

import (
	"fmt"
	"sync"
	"time"
)

// BucketType selects which identity a cooldown is partitioned by.
type BucketType int

const (
	Default BucketType = iota
	User
	Conversation
	Member
)

func (b BucketType) String() string {
	switch b {
	case Default:
		return "default"
	case User:
		return "user"
	case Conversation:
		return "conversation"
	case Member:
		return "member"
	}
	return fmt.Sprintf("BucketType(%d)", int(b))
}

// Message is the part of an inbound message a cooldown needs for keying.
type Message interface {
	AuthorID() string
	ConversationID() string
}

type memberKey struct {
	conversation, author string
}

// Key returns the partition key of msg. Default has no key.
func (b BucketType) Key(msg Message) any {
	switch b {
	case User:
		return msg.AuthorID()
	case Conversation:
		return msg.ConversationID()
	case Member:
		return memberKey{msg.ConversationID(), msg.AuthorID()}
	}
	return nil
}

// Cooldown is a token bucket allowing Rate uses every Per.
type Cooldown struct {
	Rate int
	Per  time.Duration
	Type BucketType

	tokens int
	window time.Time
	last   time.Time
}

func New(rate int, per time.Duration, bucket BucketType) *Cooldown {
	return &Cooldown{Rate: rate, Per: per, Type: bucket, tokens: rate}
}

// GetTokens returns the tokens available at now, refilling if the window
// has passed.
func (c *Cooldown) GetTokens(now time.Time) int {
	tokens := c.tokens
	if now.After(c.window.Add(c.Per)) {
		tokens = c.Rate
	}
	return tokens
}

// UpdateRateLimit consumes one token. It returns how long to wait when the
// bucket is exhausted, or zero when the use was allowed.
func (c *Cooldown) UpdateRateLimit(now time.Time) time.Duration {
	c.last = now
	c.tokens = c.GetTokens(now)

	// new window
	if c.tokens == c.Rate {
		c.window = now
	}

	if c.tokens == 0 {
		return c.Per - now.Sub(c.window)
	}

	c.tokens--

	// latch the window to the consuming call that emptied the bucket
	if c.tokens == 0 {
		c.window = now
	}
	return 0
}

func (c *Cooldown) Reset() {
	c.tokens = c.Rate
	c.last = time.Time{}
}

// Copy returns a fresh bucket with the same limits.
func (c *Cooldown) Copy() *Cooldown {
	return New(c.Rate, c.Per, c.Type)
}

// Last is the time of the most recent UpdateRateLimit call.
func (c *Cooldown) Last() time.Time {
	return c.last
}

func (c *Cooldown) String() string {
	return fmt.Sprintf("<Cooldown rate: %d per: %s window: %s tokens: %d>", c.Rate, c.Per, c.window, c.tokens)
}

// Mapping keeps one bucket per partition key, copied from an original.
type Mapping struct {
	original *Cooldown

	mu    sync.Mutex
	cache map[any]*Cooldown
}

// NewMapping wraps original. A nil original yields a mapping that never
// limits.
func NewMapping(original *Cooldown) *Mapping {
	return &Mapping{original: original, cache: map[any]*Cooldown{}}
}

func (m *Mapping) Valid() bool {
	return m != nil && m.original != nil
}

func (m *Mapping) Original() *Cooldown {
	return m.original
}

// Copy returns an empty mapping sharing the original's limits.
func (m *Mapping) Copy() *Mapping {
	if !m.Valid() {
		return NewMapping(nil)
	}
	return NewMapping(m.original.Copy())
}

// Len reports the number of cached buckets.
func (m *Mapping) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}

// evict drops buckets whose last use is older than their own window.
func (m *Mapping) evict(now time.Time) {
	for k, b := range m.cache {
		if now.After(b.last.Add(b.Per)) {
			delete(m.cache, k)
		}
	}
}

// GetBucket returns the bucket for msg, creating it when missing. Default
// mappings always return the shared original.
func (m *Mapping) GetBucket(msg Message, now time.Time) *Cooldown {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getBucketLocked(msg, now)
}

// getBucketLocked is GetBucket for callers holding m.mu. A new bucket counts
// as used at now so it survives eviction until its first window passes.
func (m *Mapping) getBucketLocked(msg Message, now time.Time) *Cooldown {
	if m.original.Type == Default {
		return m.original
	}

	m.evict(now)

	key := m.original.Type.Key(msg)
	bucket, ok := m.cache[key]
	if !ok {
		bucket = m.original.Copy()
		bucket.last = now
		m.cache[key] = bucket
	}
	return bucket
}

// UpdateRateLimit consumes a token from msg's bucket and returns the retry
// delay, zero meaning allowed.
func (m *Mapping) UpdateRateLimit(msg Message, now time.Time) time.Duration {
	if !m.Valid() {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getBucketLocked(msg, now).UpdateRateLimit(now)
}

// Tokens reports the tokens msg's bucket would have at now.
func (m *Mapping) Tokens(msg Message, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getBucketLocked(msg, now).GetTokens(now)
}

// Reset refills msg's bucket.
func (m *Mapping) Reset(msg Message, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getBucketLocked(msg, now).Reset()
}
