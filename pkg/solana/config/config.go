package config

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"gopkg.in/guregu/null.v4"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/commitment"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/logger"
)

// Global lite-rpc defaults.
var defaultConfigSet = configSet{
	HTTPListenAddr:         ":8890",
	WSListenAddr:           ":8891",
	Commitment:             rpc.CommitmentConfirmed,
	RequestTimeout:         5 * time.Second,
	BlockPollPeriod:        time.Second,      // block information refresh
	ConfirmPollPeriod:      time.Second,      // polling for signature statuses
	MaxSigsToConfirm:       256,              // max number of signatures in GetSignatureStatuses call
	ConfirmWorkers:         4,                // concurrent GetSignatureStatuses batches
	NotificationBufferSize: 1024,             // per broadcaster ring capacity
	CleanInterval:          5 * time.Minute,  // signature status eviction period
	SignatureRetention:     10 * time.Minute, // how long a tracked signature is kept
}

type Config interface {
	RPCEndpoint() string
	WSEndpoint() string
	HTTPListenAddr() string
	WSListenAddr() string
	Commitment() rpc.CommitmentType
	RequestTimeout() time.Duration
	BlockPollPeriod() time.Duration
	ConfirmPollPeriod() time.Duration
	MaxSigsToConfirm() int
	ConfirmWorkers() int
	NotificationBufferSize() int
	CleanInterval() time.Duration
	SignatureRetention() time.Duration

	// Update sets new override values.
	Update(Overrides)
}

type configSet struct {
	HTTPListenAddr         string
	WSListenAddr           string
	Commitment             rpc.CommitmentType
	RequestTimeout         time.Duration
	BlockPollPeriod        time.Duration
	ConfirmPollPeriod      time.Duration
	MaxSigsToConfirm       int
	ConfirmWorkers         int
	NotificationBufferSize int
	CleanInterval          time.Duration
	SignatureRetention     time.Duration
}

// Overrides holds operator supplied values. Unset fields fall back to defaults.
// Durations are expressed in milliseconds.
type Overrides struct {
	RPCURL string
	WSURL  string

	HTTPListenAddr null.String
	WSListenAddr   null.String
	Commitment     null.String

	RequestTimeoutMs    null.Int
	BlockPollPeriodMs   null.Int
	ConfirmPollPeriodMs null.Int

	MaxSigsToConfirm       null.Int
	ConfirmWorkers         null.Int
	NotificationBufferSize null.Int

	CleanIntervalMs      null.Int
	SignatureRetentionMs null.Int
}

var _ Config = (*config)(nil)

type config struct {
	defaults  configSet
	overrides Overrides
	mu        sync.RWMutex
	lggr      logger.Logger
}

// NewConfig returns a Config with defaults overridden by o.
func NewConfig(o Overrides, lggr logger.Logger) *config {
	return &config{
		defaults:  defaultConfigSet,
		overrides: o,
		lggr:      lggr,
	}
}

func (c *config) Update(o Overrides) {
	c.mu.Lock()
	c.overrides = o
	c.mu.Unlock()
}

func (c *config) get() Overrides {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.overrides
}

func (c *config) RPCEndpoint() string { return c.get().RPCURL }

func (c *config) WSEndpoint() string { return c.get().WSURL }

func (c *config) HTTPListenAddr() string {
	if o := c.get().HTTPListenAddr; o.Valid && o.String != "" {
		return o.String
	}
	return c.defaults.HTTPListenAddr
}

func (c *config) WSListenAddr() string {
	if o := c.get().WSListenAddr; o.Valid && o.String != "" {
		return o.String
	}
	return c.defaults.WSListenAddr
}

func (c *config) Commitment() rpc.CommitmentType {
	o := c.get().Commitment
	if !o.Valid {
		return c.defaults.Commitment
	}
	lvl, err := commitment.Parse(o.String)
	if err != nil {
		c.lggr.Warnf(invalidFallbackMsg, "Commitment", o.String, c.defaults.Commitment, err)
		return c.defaults.Commitment
	}
	return lvl.RPC()
}

func (c *config) RequestTimeout() time.Duration {
	return c.duration("RequestTimeout", c.get().RequestTimeoutMs, c.defaults.RequestTimeout)
}

func (c *config) BlockPollPeriod() time.Duration {
	return c.duration("BlockPollPeriod", c.get().BlockPollPeriodMs, c.defaults.BlockPollPeriod)
}

func (c *config) ConfirmPollPeriod() time.Duration {
	return c.duration("ConfirmPollPeriod", c.get().ConfirmPollPeriodMs, c.defaults.ConfirmPollPeriod)
}

func (c *config) MaxSigsToConfirm() int {
	return c.positive("MaxSigsToConfirm", c.get().MaxSigsToConfirm, c.defaults.MaxSigsToConfirm)
}

func (c *config) ConfirmWorkers() int {
	return c.positive("ConfirmWorkers", c.get().ConfirmWorkers, c.defaults.ConfirmWorkers)
}

func (c *config) NotificationBufferSize() int {
	return c.positive("NotificationBufferSize", c.get().NotificationBufferSize, c.defaults.NotificationBufferSize)
}

func (c *config) CleanInterval() time.Duration {
	return c.duration("CleanInterval", c.get().CleanIntervalMs, c.defaults.CleanInterval)
}

func (c *config) SignatureRetention() time.Duration {
	return c.duration("SignatureRetention", c.get().SignatureRetentionMs, c.defaults.SignatureRetention)
}

func (c *config) duration(name string, ms null.Int, def time.Duration) time.Duration {
	if !ms.Valid {
		return def
	}
	if ms.Int64 <= 0 {
		c.lggr.Warnf(invalidFallbackMsg, name, fmt.Sprintf("%dms", ms.Int64), def, "must be positive")
		return def
	}
	return time.Duration(ms.Int64) * time.Millisecond
}

func (c *config) positive(name string, v null.Int, def int) int {
	if !v.Valid {
		return def
	}
	if v.Int64 <= 0 {
		c.lggr.Warnf(invalidFallbackMsg, name, fmt.Sprint(v.Int64), def, "must be positive")
		return def
	}
	return int(v.Int64)
}

const invalidFallbackMsg = `Invalid value provided for %s, "%s" - falling back to default "%v": %v`

// Validate checks the values that have no sensible default.
func Validate(c Config) error {
	required := map[string]string{
		"rpc-url": c.RPCEndpoint(),
		"ws-url":  c.WSEndpoint(),
	}
	for name, current := range required {
		if current == "" {
			return fmt.Errorf("'%s' is required", name)
		}
	}
	for name, current := range required {
		u, err := url.ParseRequestURI(current)
		if err != nil {
			return fmt.Errorf("%s='%s' is not a valid URL: %w", name, current, err)
		}
		if u.Host == "" {
			return fmt.Errorf("%s='%s' is missing a host", name, current)
		}
	}
	return nil
}
