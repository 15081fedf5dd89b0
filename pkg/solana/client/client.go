package client

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/config"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/logger"
)

const (
	DevnetGenesisHash  = "EtWTRABZaYq6iMfeYKouRu166VU2xqa1wcaWoxPkrZBG"
	TestnetGenesisHash = "4uhcVJyU9pJkvQyS88uRDiswHXSCkY3zQawwpjk2NsNY"
	MainnetGenesisHash = "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdpKuc147dw2N9d"
)

//go:generate mockery --name Reader --output ./mocks/
type Reader interface {
	SlotWithCommitment(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	LatestBlockhashWithCommitment(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SignatureStatuses(ctx context.Context, sigs []solana.Signature) ([]*rpc.SignatureStatusesResult, error)
	ChainID() (string, error)
}

var _ Reader = (*Client)(nil)

type Client struct {
	rpc             *rpc.Client
	commitment      rpc.CommitmentType
	contextDuration time.Duration
	log             logger.Logger

	// provides a duplicate function call suppression mechanism
	requestGroup *singleflight.Group
}

func NewClient(endpoint string, cfg config.Config, requestTimeout time.Duration, log logger.Logger) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("empty rpc endpoint")
	}
	return &Client{
		rpc:             rpc.New(endpoint),
		commitment:      cfg.Commitment(),
		contextDuration: requestTimeout,
		log:             logger.Named(log, "Client"),
		requestGroup:    &singleflight.Group{},
	}, nil
}

// SlotWithCommitment returns the current slot at the given commitment.
// An empty commitment uses the configured default.
func (c *Client) SlotWithCommitment(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.contextDuration)
	defer cancel()
	commitment = c.orDefault(commitment)

	res, err, _ := c.requestGroup.Do(fmt.Sprintf("GetSlot(%s)", commitment), func() (interface{}, error) {
		return c.rpc.GetSlot(ctx, commitment)
	})
	if err != nil {
		return 0, errors.Wrap(err, "error in GetSlot")
	}
	if res == nil {
		return 0, errors.New("nil pointer in GetSlot")
	}
	return res.(uint64), nil
}

func (c *Client) LatestBlockhashWithCommitment(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.contextDuration)
	defer cancel()
	commitment = c.orDefault(commitment)

	v, err, _ := c.requestGroup.Do(fmt.Sprintf("GetLatestBlockhash(%s)", commitment), func() (interface{}, error) {
		return c.rpc.GetLatestBlockhash(ctx, commitment)
	})
	if err != nil {
		return nil, errors.Wrap(err, "error in GetLatestBlockhash")
	}
	res, ok := v.(*rpc.GetLatestBlockhashResult)
	if !ok || res == nil || res.Value == nil {
		return nil, errors.New("nil pointer in GetLatestBlockhash")
	}
	return res, nil
}

// https://docs.solana.com/developing/clients/jsonrpc-api#getsignaturestatuses
func (c *Client) SignatureStatuses(ctx context.Context, sigs []solana.Signature) ([]*rpc.SignatureStatusesResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.contextDuration)
	defer cancel()

	// searchTransactionHistory = false
	res, err := c.rpc.GetSignatureStatuses(ctx, false, sigs...)
	if err != nil {
		return nil, errors.Wrap(err, "error in GetSignatureStatuses")
	}

	if res == nil || res.Value == nil {
		return nil, errors.New("nil pointer in GetSignatureStatuses")
	}
	return res.Value, nil
}

func (c *Client) ChainID() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.contextDuration)
	defer cancel()
	v, err, _ := c.requestGroup.Do("GetGenesisHash", func() (interface{}, error) {
		return c.rpc.GetGenesisHash(ctx)
	})
	if err != nil {
		return "", errors.Wrap(err, "error in GetGenesisHash")
	}
	hash := v.(solana.Hash)

	var network string
	switch hash.String() {
	case DevnetGenesisHash:
		network = "devnet"
	case TestnetGenesisHash:
		network = "testnet"
	case MainnetGenesisHash:
		network = "mainnet"
	default:
		c.log.Warnf("unknown genesis hash - assuming solana chain is 'localnet'")
		network = "localnet"
	}
	return network, nil
}

func (c *Client) orDefault(commitment rpc.CommitmentType) rpc.CommitmentType {
	if commitment == "" {
		return c.commitment
	}
	return commitment
}
