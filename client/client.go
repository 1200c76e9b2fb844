package client

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	tmbytes "github.com/cometbft/cometbft/libs/bytes"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	cmtrpctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/JunaidCD/AyurherbX-sub001/app"
	"github.com/JunaidCD/AyurherbX-sub001/identity"
	"github.com/JunaidCD/AyurherbX-sub001/ledger"
)

var (
	// ErrNotDeployed is returned by write operations while no ledger
	// descriptor is present.
	ErrNotDeployed = errors.New("ledger is not deployed")

	// ErrResultUnavailable is returned when a committed submit transaction
	// carries no collection_submitted event to recover the assigned id from.
	ErrResultUnavailable = errors.New("transaction committed but result event is unavailable")
)

// RPCClient is the subset of the CometBFT RPC surface the chain client
// needs. The node's local client satisfies it; tests provide a fake.
type RPCClient interface {
	BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*cmtrpctypes.ResultBroadcastTxCommit, error)
	ABCIQuery(ctx context.Context, path string, data tmbytes.HexBytes) (*cmtrpctypes.ResultABCIQuery, error)
}

// TxResult is the normalized outcome of a committed write transaction.
type TxResult struct {
	TxHash       string `json:"transactionHash"`
	CollectionID uint64 `json:"collectionId,omitempty"`
	BlockHeight  int64  `json:"blockNumber"`
	GasUsed      int64  `json:"gasUsed"`
}

// Client bridges application requests to the ledger. It is an explicitly
// constructed object: no package-level state, initialization happens once in
// NewClient, and the same instance is shared read-only by all callers.
type Client struct {
	rpc        RPCClient
	descriptor *Descriptor
	logger     cmtlog.Logger
}

// NewClient builds a chain client over the given RPC connection. A nil
// descriptor puts the client in not-deployed mode.
func NewClient(rpc RPCClient, descriptor *Descriptor, logger cmtlog.Logger) *Client {
	return &Client{
		rpc:        rpc,
		descriptor: descriptor,
		logger:     logger,
	}
}

// Descriptor returns the ledger deployment record, or nil when the ledger is
// not deployed. Callers treat nil as "not yet configured", not as an error.
func (c *Client) Descriptor() *Descriptor {
	return c.descriptor
}

// SetDescriptor marks the ledger deployed after the descriptor is first
// written, moving the client out of not-deployed mode.
func (c *Client) SetDescriptor(desc *Descriptor) {
	c.descriptor = desc
}

// SubmitCollection signs and broadcasts a submit transaction, waits for the
// commit, and recovers the assigned collection id from the emitted event.
func (c *Client) SubmitCollection(ctx context.Context, signer *identity.Wallet, payload ledger.SubmitPayload) (*TxResult, error) {
	result, events, err := c.broadcast(ctx, signer, ledger.TxSubmitCollection, payload)
	if err != nil {
		return nil, err
	}

	id, err := decodeSubmittedID(events)
	if err != nil {
		return nil, err
	}
	result.CollectionID = id
	return result, nil
}

// VerifyCollection signs and broadcasts a verify transaction. It succeeds
// only when the signer is the current ledger owner.
func (c *Client) VerifyCollection(ctx context.Context, signer *identity.Wallet, id uint64) (*TxResult, error) {
	result, _, err := c.broadcast(ctx, signer, ledger.TxVerifyCollection, ledger.VerifyPayload{CollectionID: id})
	if err != nil {
		return nil, err
	}
	result.CollectionID = id
	return result, nil
}

// UpdateOwner signs and broadcasts an owner reassignment.
func (c *Client) UpdateOwner(ctx context.Context, signer *identity.Wallet, newOwner identity.Address) (*TxResult, error) {
	result, _, err := c.broadcast(ctx, signer, ledger.TxUpdateOwner, ledger.UpdateOwnerPayload{NewOwner: newOwner})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetCollection looks up a single record through a read-only query.
func (c *Client) GetCollection(ctx context.Context, id uint64) (*ledger.CollectionRecord, error) {
	var record ledger.CollectionRecord
	err := c.query(ctx, app.QueryCollection, []byte(strconv.FormatUint(id, 10)), &record)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetCollectorCollections fetches the collector's id list and resolves each
// id individually. A record that fails to resolve is logged and counted, not
// fatal: the caller gets every record that did resolve plus the skip count.
func (c *Client) GetCollectorCollections(ctx context.Context, collector identity.Address) ([]ledger.CollectionRecord, int, error) {
	var ids []uint64
	if err := c.query(ctx, app.QueryCollector, []byte(collector), &ids); err != nil {
		return nil, 0, err
	}

	records := make([]ledger.CollectionRecord, 0, len(ids))
	skipped := 0
	for _, id := range ids {
		record, err := c.GetCollection(ctx, id)
		if err != nil {
			c.logger.Error("Skipping unresolvable collection", "id", id, "collector", collector, "err", err)
			skipped++
			continue
		}
		records = append(records, *record)
	}
	return records, skipped, nil
}

// GetAllCollections returns every record in id order.
func (c *Client) GetAllCollections(ctx context.Context) ([]ledger.CollectionRecord, error) {
	var records []ledger.CollectionRecord
	if err := c.query(ctx, app.QueryCollections, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetTotalCollections returns the count of records ever created.
func (c *Client) GetTotalCollections(ctx context.Context) (uint64, error) {
	var total uint64
	if err := c.query(ctx, app.QueryTotal, nil, &total); err != nil {
		return 0, err
	}
	return total, nil
}

// Owner returns the current privileged identity recorded on the ledger.
func (c *Client) Owner(ctx context.Context) (identity.Address, error) {
	var owner identity.Address
	if err := c.query(ctx, app.QueryOwner, nil, &owner); err != nil {
		return "", err
	}
	return owner, nil
}

// broadcast signs the payload, submits the transaction and waits for it to
// be committed. Chain rejections come back as the ledger's domain errors so
// callers can use errors.Is. Submission is fire-once: a failed transaction
// is never retried here.
func (c *Client) broadcast(ctx context.Context, signer *identity.Wallet, txType string, payload interface{}) (*TxResult, []abcitypes.Event, error) {
	if c.descriptor == nil {
		return nil, nil, ErrNotDeployed
	}
	if signer == nil {
		return nil, nil, fmt.Errorf("no signing identity configured")
	}

	signedTx, err := signer.SignTx(txType, payload)
	if err != nil {
		return nil, nil, fmt.Errorf("signing %s tx: %w", txType, err)
	}
	txBytes, err := json.Marshal(signedTx)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding %s tx: %w", txType, err)
	}

	result, err := c.rpc.BroadcastTxCommit(ctx, cmttypes.Tx(txBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("broadcasting %s tx: %w", txType, err)
	}

	if result.CheckTx.Code != app.CodeOK {
		return nil, nil, codeError(result.CheckTx.Code, result.CheckTx.Log)
	}
	if result.TxResult.Code != app.CodeOK {
		return nil, nil, codeError(result.TxResult.Code, result.TxResult.Log)
	}

	return &TxResult{
		TxHash:      hex.EncodeToString(result.Hash),
		BlockHeight: result.Height,
		GasUsed:     result.TxResult.GasUsed,
	}, result.TxResult.Events, nil
}

// query runs a read-only ABCI query and decodes the JSON value. Reads are
// allowed in not-deployed mode only to report the missing deployment.
func (c *Client) query(ctx context.Context, path string, data []byte, out interface{}) error {
	if c.descriptor == nil {
		return ErrNotDeployed
	}

	result, err := c.rpc.ABCIQuery(ctx, path, data)
	if err != nil {
		return fmt.Errorf("querying %s: %w", path, err)
	}
	if result.Response.Code != app.CodeOK {
		return codeError(result.Response.Code, result.Response.Log)
	}
	return json.Unmarshal(result.Response.Value, out)
}

// decodeSubmittedID recovers the assigned collection id from the submit
// transaction's emitted events.
func decodeSubmittedID(events []abcitypes.Event) (uint64, error) {
	for _, event := range events {
		if event.Type != ledger.EventCollectionSubmitted {
			continue
		}
		for _, attr := range event.Attributes {
			if attr.Key == ledger.AttrCollectionID {
				id, err := strconv.ParseUint(attr.Value, 10, 64)
				if err != nil {
					return 0, fmt.Errorf("%w: malformed collection id %q", ErrResultUnavailable, attr.Value)
				}
				return id, nil
			}
		}
	}
	return 0, ErrResultUnavailable
}

// codeError converts an ABCI result code into the matching domain error,
// falling back to the raw log line for codes with no domain meaning.
func codeError(code uint32, log string) error {
	if err := app.ErrorForCode(code); err != nil {
		return err
	}
	return fmt.Errorf("ledger rejected transaction (code %d): %s", code, log)
}
