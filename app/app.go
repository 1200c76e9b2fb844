package app

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/dgraph-io/badger/v4"

	"github.com/JunaidCD/AyurherbX-sub001/identity"
	"github.com/JunaidCD/AyurherbX-sub001/ledger"
)

// Result codes shared between the ABCI app and the chain client. The client
// maps them back to the ledger's domain errors.
const (
	CodeOK uint32 = iota
	CodeInvalidFormat
	CodeBadSignature
	CodeEmptyField
	CodeUnknownType
	CodeNotFound
	CodeAlreadyVerified
	CodeNotOwner
	CodeZeroOwner
	CodeInternal
)

// Query paths served by the ABCI Query method.
const (
	QueryCollection  = "/collection"
	QueryCollections = "/collections"
	QueryCollector   = "/collector"
	QueryTotal       = "/total"
	QueryOwner       = "/owner"
)

// Application implements the ABCI interface for AyurherbX nodes. All state
// transitions go through the embedded ledger; the app only decodes
// transactions, verifies signatures and keeps block bookkeeping.
type Application struct {
	badgerDB     *badger.DB
	onGoingBlock *badger.Txn
	ledger       *ledger.Ledger
	nodeID       string
	mu           sync.Mutex
	config       *AppConfig
	logger       cmtlog.Logger
}

// AppConfig contains configuration for the application
type AppConfig struct {
	NodeID       string
	GenesisOwner identity.Address // privileged identity recorded at chain init
}

// NewABCIApplication creates a new application
func NewABCIApplication(badgerDB *badger.DB, config *AppConfig, logger cmtlog.Logger) *Application {
	return &Application{
		badgerDB: badgerDB,
		ledger:   ledger.NewLedger(badgerDB),
		nodeID:   "",
		config:   config,
		logger:   logger,
	}
}

func (app *Application) SetNodeID(id string) {
	app.nodeID = id
}

// Ledger exposes the underlying ledger for read-only local use.
func (app *Application) Ledger() *ledger.Ledger {
	return app.ledger
}

// Info implements the ABCI Info method
func (app *Application) Info(_ context.Context, info *abcitypes.InfoRequest) (*abcitypes.InfoResponse, error) {
	lastBlockHeight := int64(0)
	var lastBlockAppHash []byte

	err := app.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("last_block_height"))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		err = item.Value(func(val []byte) error {
			lastBlockHeight = bytesToInt64(val)
			return nil
		})
		if err != nil {
			return err
		}

		item, err = txn.Get([]byte("last_block_app_hash"))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err == nil {
			err = item.Value(func(val []byte) error {
				lastBlockAppHash = val
				return nil
			})
			if err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		app.logger.Error("Getting last block info", "err", err)
	}

	return &abcitypes.InfoResponse{
		LastBlockHeight:  lastBlockHeight,
		LastBlockAppHash: lastBlockAppHash,
	}, nil
}

// InitChain implements the ABCI InitChain method. It records the genesis
// owner so that verification is access-controlled from the first block.
func (app *Application) InitChain(_ context.Context, chain *abcitypes.InitChainRequest) (*abcitypes.InitChainResponse, error) {
	err := app.badgerDB.Update(func(txn *badger.Txn) error {
		return app.ledger.InitOwner(txn, app.config.GenesisOwner)
	})
	if err != nil {
		return nil, fmt.Errorf("initializing ledger owner: %w", err)
	}
	app.logger.Info("Ledger initialized", "owner", app.config.GenesisOwner)
	return &abcitypes.InitChainResponse{}, nil
}

// CheckTx implements the ABCI CheckTx method. It performs the stateless
// checks: envelope format, signature, and payload shape. Stateful rules
// (ownership, double verification) are enforced in FinalizeBlock.
func (app *Application) CheckTx(
	_ context.Context,
	check *abcitypes.CheckTxRequest,
) (*abcitypes.CheckTxResponse, error) {
	var tx identity.SignedTx
	if err := json.Unmarshal(check.Tx, &tx); err != nil {
		return &abcitypes.CheckTxResponse{
			Code: CodeInvalidFormat,
			Log:  "invalid transaction format",
		}, nil
	}

	if _, err := tx.Verify(); err != nil {
		return &abcitypes.CheckTxResponse{
			Code: CodeBadSignature,
			Log:  err.Error(),
		}, nil
	}

	switch tx.Type {
	case ledger.TxSubmitCollection:
		var p ledger.SubmitPayload
		if err := json.Unmarshal(tx.Payload, &p); err != nil {
			return &abcitypes.CheckTxResponse{Code: CodeInvalidFormat, Log: "invalid submit payload"}, nil
		}
		if p.HerbName == "" || p.Quantity == "" {
			return &abcitypes.CheckTxResponse{Code: CodeEmptyField, Log: ledger.ErrEmptyField.Error()}, nil
		}
	case ledger.TxVerifyCollection:
		var p ledger.VerifyPayload
		if err := json.Unmarshal(tx.Payload, &p); err != nil {
			return &abcitypes.CheckTxResponse{Code: CodeInvalidFormat, Log: "invalid verify payload"}, nil
		}
		if p.CollectionID == 0 {
			return &abcitypes.CheckTxResponse{Code: CodeNotFound, Log: ledger.ErrNotFound.Error()}, nil
		}
	case ledger.TxUpdateOwner:
		var p ledger.UpdateOwnerPayload
		if err := json.Unmarshal(tx.Payload, &p); err != nil {
			return &abcitypes.CheckTxResponse{Code: CodeInvalidFormat, Log: "invalid update_owner payload"}, nil
		}
		if p.NewOwner.IsZero() {
			return &abcitypes.CheckTxResponse{Code: CodeZeroOwner, Log: ledger.ErrZeroOwner.Error()}, nil
		}
	default:
		return &abcitypes.CheckTxResponse{Code: CodeUnknownType, Log: "unknown transaction type: " + tx.Type}, nil
	}

	return &abcitypes.CheckTxResponse{Code: CodeOK}, nil
}

// Query implements the ABCI Query method. Read paths return JSON values;
// an unknown collection id yields CodeNotFound rather than an error.
func (app *Application) Query(_ context.Context, req *abcitypes.QueryRequest) (*abcitypes.QueryResponse, error) {
	switch req.Path {
	case QueryCollection:
		id, err := strconv.ParseUint(strings.TrimSpace(string(req.Data)), 10, 64)
		if err != nil {
			return &abcitypes.QueryResponse{Code: CodeInvalidFormat, Log: "collection id must be numeric"}, nil
		}
		record, err := app.ledger.GetCollection(id)
		if err != nil {
			return queryError(err), nil
		}
		return queryJSON(req.Data, record)

	case QueryCollections:
		records, err := app.ledger.GetAllCollections()
		if err != nil {
			return queryError(err), nil
		}
		if records == nil {
			records = []ledger.CollectionRecord{}
		}
		return queryJSON(req.Data, records)

	case QueryCollector:
		ids, err := app.ledger.GetCollectorCollections(identity.Address(req.Data))
		if err != nil {
			return queryError(err), nil
		}
		if ids == nil {
			ids = []uint64{}
		}
		return queryJSON(req.Data, ids)

	case QueryTotal:
		total, err := app.ledger.GetTotalCollections()
		if err != nil {
			return queryError(err), nil
		}
		return queryJSON(req.Data, total)

	case QueryOwner:
		owner, err := app.ledger.Owner()
		if err != nil {
			return queryError(err), nil
		}
		return queryJSON(req.Data, owner)
	}

	return &abcitypes.QueryResponse{
		Code: CodeUnknownType,
		Log:  "unknown query path: " + req.Path,
	}, nil
}

// PrepareProposal implements the ABCI PrepareProposal method
func (app *Application) PrepareProposal(_ context.Context, proposal *abcitypes.PrepareProposalRequest) (*abcitypes.PrepareProposalResponse, error) {
	// Include all transactions
	return &abcitypes.PrepareProposalResponse{Txs: proposal.Txs}, nil
}

// ProcessProposal implements the ABCI ProcessProposal method
func (app *Application) ProcessProposal(
	_ context.Context,
	proposal *abcitypes.ProcessProposalRequest,
) (*abcitypes.ProcessProposalResponse, error) {
	// Malformed or badly signed transactions are rejected per-tx in
	// FinalizeBlock; the proposal itself is always acceptable.
	return &abcitypes.ProcessProposalResponse{Status: abcitypes.PROCESS_PROPOSAL_STATUS_ACCEPT}, nil
}

// FinalizeBlock implements the ABCI FinalizeBlock method. Every transaction
// in the block is executed against the ledger inside one Badger transaction;
// the block time becomes the ledger timestamp for every record it creates.
func (app *Application) FinalizeBlock(
	_ context.Context,
	req *abcitypes.FinalizeBlockRequest,
) (*abcitypes.FinalizeBlockResponse, error) {
	var txResults = make([]*abcitypes.ExecTxResult, len(req.Txs))

	app.mu.Lock()
	defer app.mu.Unlock()

	app.onGoingBlock = app.badgerDB.NewTransaction(true)

	for i, txBytes := range req.Txs {
		txResults[i] = app.executeTx(txBytes, req)
	}

	blockHeight := req.Height
	appHash := calculateAppHash(txResults)

	err := app.onGoingBlock.Set([]byte("last_block_height"), int64ToBytes(blockHeight))
	if err != nil {
		app.logger.Error("Storing block height", "err", err)
	}

	err = app.onGoingBlock.Set([]byte("last_block_app_hash"), appHash)
	if err != nil {
		app.logger.Error("Storing app hash", "err", err)
	}

	return &abcitypes.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   appHash,
	}, err
}

// executeTx runs a single transaction against the ongoing block state.
func (app *Application) executeTx(txBytes []byte, req *abcitypes.FinalizeBlockRequest) *abcitypes.ExecTxResult {
	var tx identity.SignedTx
	if err := json.Unmarshal(txBytes, &tx); err != nil {
		return &abcitypes.ExecTxResult{Code: CodeInvalidFormat, Log: "invalid transaction format"}
	}

	caller, err := tx.Verify()
	if err != nil {
		return &abcitypes.ExecTxResult{Code: CodeBadSignature, Log: err.Error()}
	}

	switch tx.Type {
	case ledger.TxSubmitCollection:
		var p ledger.SubmitPayload
		if err := json.Unmarshal(tx.Payload, &p); err != nil {
			return &abcitypes.ExecTxResult{Code: CodeInvalidFormat, Log: "invalid submit payload"}
		}
		record, err := app.ledger.SubmitCollection(app.onGoingBlock, p, caller, req.Time)
		if err != nil {
			return execError(err)
		}
		app.logger.Info("Collection submitted", "id", record.ID, "collector", caller, "herb", record.HerbName)
		return &abcitypes.ExecTxResult{
			Code:   CodeOK,
			Data:   []byte(strconv.FormatUint(record.ID, 10)),
			Events: submittedEvents(record),
		}

	case ledger.TxVerifyCollection:
		var p ledger.VerifyPayload
		if err := json.Unmarshal(tx.Payload, &p); err != nil {
			return &abcitypes.ExecTxResult{Code: CodeInvalidFormat, Log: "invalid verify payload"}
		}
		record, err := app.ledger.VerifyCollection(app.onGoingBlock, p.CollectionID, caller, req.Time)
		if err != nil {
			return execError(err)
		}
		app.logger.Info("Collection verified", "id", record.ID, "verifier", caller)
		return &abcitypes.ExecTxResult{
			Code:   CodeOK,
			Data:   []byte(strconv.FormatUint(record.ID, 10)),
			Events: verifiedEvents(record),
		}

	case ledger.TxUpdateOwner:
		var p ledger.UpdateOwnerPayload
		if err := json.Unmarshal(tx.Payload, &p); err != nil {
			return &abcitypes.ExecTxResult{Code: CodeInvalidFormat, Log: "invalid update_owner payload"}
		}
		if err := app.ledger.UpdateOwner(app.onGoingBlock, p.NewOwner, caller); err != nil {
			return execError(err)
		}
		app.logger.Info("Ledger owner updated", "new_owner", p.NewOwner)
		return &abcitypes.ExecTxResult{
			Code: CodeOK,
			Events: []abcitypes.Event{{
				Type: ledger.EventOwnerUpdated,
				Attributes: []abcitypes.EventAttribute{
					{Key: ledger.AttrNewOwner, Value: string(p.NewOwner), Index: true},
				},
			}},
		}
	}

	return &abcitypes.ExecTxResult{Code: CodeUnknownType, Log: "unknown transaction type: " + tx.Type}
}

// Commit implements the ABCI Commit method
func (app *Application) Commit(_ context.Context, commit *abcitypes.CommitRequest) (*abcitypes.CommitResponse, error) {
	err := app.onGoingBlock.Commit()
	if err != nil {
		app.logger.Error("Committing block", "err", err)
	}

	return &abcitypes.CommitResponse{}, nil
}

// ListSnapshots implements the ABCI ListSnapshots method
func (app *Application) ListSnapshots(_ context.Context, snapshots *abcitypes.ListSnapshotsRequest) (*abcitypes.ListSnapshotsResponse, error) {
	return &abcitypes.ListSnapshotsResponse{}, nil
}

// OfferSnapshot implements the ABCI OfferSnapshot method
func (app *Application) OfferSnapshot(_ context.Context, snapshot *abcitypes.OfferSnapshotRequest) (*abcitypes.OfferSnapshotResponse, error) {
	return &abcitypes.OfferSnapshotResponse{}, nil
}

// LoadSnapshotChunk implements the ABCI LoadSnapshotChunk method
func (app *Application) LoadSnapshotChunk(_ context.Context, chunk *abcitypes.LoadSnapshotChunkRequest) (*abcitypes.LoadSnapshotChunkResponse, error) {
	return &abcitypes.LoadSnapshotChunkResponse{}, nil
}

// ApplySnapshotChunk implements the ABCI ApplySnapshotChunk method
func (app *Application) ApplySnapshotChunk(_ context.Context, chunk *abcitypes.ApplySnapshotChunkRequest) (*abcitypes.ApplySnapshotChunkResponse, error) {
	return &abcitypes.ApplySnapshotChunkResponse{
		Result: abcitypes.APPLY_SNAPSHOT_CHUNK_RESULT_ACCEPT,
	}, nil
}

// ExtendVote implements the ABCI ExtendVote method
func (app *Application) ExtendVote(_ context.Context, extend *abcitypes.ExtendVoteRequest) (*abcitypes.ExtendVoteResponse, error) {
	return &abcitypes.ExtendVoteResponse{}, nil
}

// VerifyVoteExtension implements the ABCI VerifyVoteExtension method
func (app *Application) VerifyVoteExtension(_ context.Context, verify *abcitypes.VerifyVoteExtensionRequest) (*abcitypes.VerifyVoteExtensionResponse, error) {
	return &abcitypes.VerifyVoteExtensionResponse{}, nil
}

// Helper Functions

// CodeForError maps a ledger domain error to its ABCI result code.
func CodeForError(err error) uint32 {
	switch {
	case errors.Is(err, ledger.ErrEmptyField):
		return CodeEmptyField
	case errors.Is(err, ledger.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ledger.ErrAlreadyVerified):
		return CodeAlreadyVerified
	case errors.Is(err, ledger.ErrNotOwner):
		return CodeNotOwner
	case errors.Is(err, ledger.ErrZeroOwner):
		return CodeZeroOwner
	}
	return CodeInternal
}

// ErrorForCode maps an ABCI result code back to the ledger domain error, or
// nil when the code carries no domain meaning.
func ErrorForCode(code uint32) error {
	switch code {
	case CodeEmptyField:
		return ledger.ErrEmptyField
	case CodeNotFound:
		return ledger.ErrNotFound
	case CodeAlreadyVerified:
		return ledger.ErrAlreadyVerified
	case CodeNotOwner:
		return ledger.ErrNotOwner
	case CodeZeroOwner:
		return ledger.ErrZeroOwner
	}
	return nil
}

func execError(err error) *abcitypes.ExecTxResult {
	return &abcitypes.ExecTxResult{Code: CodeForError(err), Log: err.Error()}
}

func queryError(err error) *abcitypes.QueryResponse {
	return &abcitypes.QueryResponse{Code: CodeForError(err), Log: err.Error()}
}

func queryJSON(key []byte, value interface{}) (*abcitypes.QueryResponse, error) {
	valueBytes, err := json.Marshal(value)
	if err != nil {
		return &abcitypes.QueryResponse{Code: CodeInternal, Log: err.Error()}, nil
	}
	return &abcitypes.QueryResponse{Code: CodeOK, Key: key, Value: valueBytes}, nil
}

func submittedEvents(record *ledger.CollectionRecord) []abcitypes.Event {
	return []abcitypes.Event{{
		Type: ledger.EventCollectionSubmitted,
		Attributes: []abcitypes.EventAttribute{
			{Key: ledger.AttrCollectionID, Value: strconv.FormatUint(record.ID, 10), Index: true},
			{Key: ledger.AttrCollector, Value: string(record.Collector), Index: true},
			{Key: ledger.AttrHerbName, Value: record.HerbName, Index: true},
			{Key: ledger.AttrBatchID, Value: record.BatchID, Index: true},
			{Key: ledger.AttrTimestamp, Value: record.Timestamp.UTC().Format(time.RFC3339), Index: false},
		},
	}}
}

func verifiedEvents(record *ledger.CollectionRecord) []abcitypes.Event {
	return []abcitypes.Event{{
		Type: ledger.EventCollectionVerified,
		Attributes: []abcitypes.EventAttribute{
			{Key: ledger.AttrCollectionID, Value: strconv.FormatUint(record.ID, 10), Index: true},
			{Key: ledger.AttrVerifier, Value: string(record.VerifiedBy), Index: true},
		},
	}}
}

// calculateAppHash calculates the application hash for the current block
func calculateAppHash(txResults []*abcitypes.ExecTxResult) []byte {
	allData := make([]byte, 0)

	for _, result := range txResults {
		allData = append(allData, result.Data...)
	}

	hash := sha256.Sum256(allData)
	return hash[:]
}

// int64ToBytes converts an int64 to bytes
func int64ToBytes(i int64) []byte {
	buf := make([]byte, 8)

	buf[0] = byte(i >> 56)
	buf[1] = byte(i >> 48)
	buf[2] = byte(i >> 40)
	buf[3] = byte(i >> 32)
	buf[4] = byte(i >> 24)
	buf[5] = byte(i >> 16)
	buf[6] = byte(i >> 8)
	buf[7] = byte(i)

	return buf
}

// bytesToInt64 converts bytes to an int64
func bytesToInt64(buf []byte) int64 {
	if len(buf) < 8 {
		return 0
	}

	return int64(buf[0])<<56 |
		int64(buf[1])<<48 |
		int64(buf[2])<<40 |
		int64(buf[3])<<32 |
		int64(buf[4])<<24 |
		int64(buf[5])<<16 |
		int64(buf[6])<<8 |
		int64(buf[7])
}
