package client

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	tmbytes "github.com/cometbft/cometbft/libs/bytes"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	cmtrpctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/stretchr/testify/require"

	"github.com/JunaidCD/AyurherbX-sub001/app"
	"github.com/JunaidCD/AyurherbX-sub001/identity"
	"github.com/JunaidCD/AyurherbX-sub001/ledger"
)

// fakeRPC scripts the node's responses and records what was sent.
type fakeRPC struct {
	broadcastFn func(tx cmttypes.Tx) (*cmtrpctypes.ResultBroadcastTxCommit, error)
	queryFn     func(path string, data tmbytes.HexBytes) (*cmtrpctypes.ResultABCIQuery, error)
}

func (f *fakeRPC) BroadcastTxCommit(_ context.Context, tx cmttypes.Tx) (*cmtrpctypes.ResultBroadcastTxCommit, error) {
	return f.broadcastFn(tx)
}

func (f *fakeRPC) ABCIQuery(_ context.Context, path string, data tmbytes.HexBytes) (*cmtrpctypes.ResultABCIQuery, error) {
	return f.queryFn(path, data)
}

func testDescriptor() *Descriptor {
	return &Descriptor{
		ChainID:    "ayurherb-test",
		Network:    "ayurherb-local",
		Owner:      identity.Address("AAAA000000000000000000000000000000000001"),
		DeployedAt: time.Now().UTC(),
	}
}

func committedResult(events []abcitypes.Event) *cmtrpctypes.ResultBroadcastTxCommit {
	return &cmtrpctypes.ResultBroadcastTxCommit{
		CheckTx:  abcitypes.CheckTxResponse{Code: app.CodeOK},
		TxResult: abcitypes.ExecTxResult{Code: app.CodeOK, Events: events, GasUsed: 21},
		Hash:     tmbytes.HexBytes{0xde, 0xad, 0xbe, 0xef},
		Height:   7,
	}
}

func queryResult(code uint32, value interface{}) *cmtrpctypes.ResultABCIQuery {
	valueBytes, _ := json.Marshal(value)
	return &cmtrpctypes.ResultABCIQuery{
		Response: abcitypes.QueryResponse{Code: code, Value: valueBytes},
	}
}

func TestSubmitCollectionDecodesEventID(t *testing.T) {
	w := identity.NewWallet()
	rpc := &fakeRPC{
		broadcastFn: func(tx cmttypes.Tx) (*cmtrpctypes.ResultBroadcastTxCommit, error) {
			var signed identity.SignedTx
			require.NoError(t, json.Unmarshal(tx, &signed))
			require.Equal(t, ledger.TxSubmitCollection, signed.Type)
			_, err := signed.Verify()
			require.NoError(t, err)

			return committedResult([]abcitypes.Event{{
				Type: ledger.EventCollectionSubmitted,
				Attributes: []abcitypes.EventAttribute{
					{Key: ledger.AttrCollectionID, Value: "12"},
					{Key: ledger.AttrCollector, Value: string(w.Address())},
				},
			}}), nil
		},
	}
	c := NewClient(rpc, testDescriptor(), cmtlog.NewNopLogger())

	result, err := c.SubmitCollection(context.Background(), w, ledger.SubmitPayload{HerbName: "Brahmi", Quantity: "5kg"})
	require.NoError(t, err)
	require.Equal(t, uint64(12), result.CollectionID)
	require.Equal(t, "deadbeef", result.TxHash)
	require.Equal(t, int64(7), result.BlockHeight)
	require.Equal(t, int64(21), result.GasUsed)
}

func TestSubmitCollectionMissingEvent(t *testing.T) {
	rpc := &fakeRPC{
		broadcastFn: func(cmttypes.Tx) (*cmtrpctypes.ResultBroadcastTxCommit, error) {
			return committedResult(nil), nil
		},
	}
	c := NewClient(rpc, testDescriptor(), cmtlog.NewNopLogger())

	_, err := c.SubmitCollection(context.Background(), identity.NewWallet(), ledger.SubmitPayload{HerbName: "Brahmi", Quantity: "5kg"})
	require.ErrorIs(t, err, ErrResultUnavailable)
}

func TestNotDeployedFailsFast(t *testing.T) {
	called := false
	rpc := &fakeRPC{
		broadcastFn: func(cmttypes.Tx) (*cmtrpctypes.ResultBroadcastTxCommit, error) {
			called = true
			return committedResult(nil), nil
		},
		queryFn: func(string, tmbytes.HexBytes) (*cmtrpctypes.ResultABCIQuery, error) {
			called = true
			return queryResult(app.CodeOK, nil), nil
		},
	}
	c := NewClient(rpc, nil, cmtlog.NewNopLogger())
	ctx := context.Background()

	_, err := c.SubmitCollection(ctx, identity.NewWallet(), ledger.SubmitPayload{HerbName: "Brahmi", Quantity: "5kg"})
	require.ErrorIs(t, err, ErrNotDeployed)
	_, err = c.GetCollection(ctx, 1)
	require.ErrorIs(t, err, ErrNotDeployed)
	_, _, err = c.GetCollectorCollections(ctx, "AAAA000000000000000000000000000000000001")
	require.ErrorIs(t, err, ErrNotDeployed)
	require.False(t, called)

	c.SetDescriptor(testDescriptor())
	_, err = c.GetCollection(ctx, 1)
	require.NoError(t, err)
	require.True(t, called)
}

func TestBroadcastMapsRejectionCodes(t *testing.T) {
	cases := []struct {
		name string
		code uint32
		want error
	}{
		{"not owner", app.CodeNotOwner, ledger.ErrNotOwner},
		{"already verified", app.CodeAlreadyVerified, ledger.ErrAlreadyVerified},
		{"not found", app.CodeNotFound, ledger.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rpc := &fakeRPC{
				broadcastFn: func(cmttypes.Tx) (*cmtrpctypes.ResultBroadcastTxCommit, error) {
					result := committedResult(nil)
					result.TxResult.Code = tc.code
					return result, nil
				},
			}
			c := NewClient(rpc, testDescriptor(), cmtlog.NewNopLogger())

			_, err := c.VerifyCollection(context.Background(), identity.NewWallet(), 3)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestBroadcastSurfacesCheckTxRejection(t *testing.T) {
	rpc := &fakeRPC{
		broadcastFn: func(cmttypes.Tx) (*cmtrpctypes.ResultBroadcastTxCommit, error) {
			result := committedResult(nil)
			result.CheckTx.Code = app.CodeBadSignature
			result.CheckTx.Log = "signature verification failed"
			return result, nil
		},
	}
	c := NewClient(rpc, testDescriptor(), cmtlog.NewNopLogger())

	_, err := c.UpdateOwner(context.Background(), identity.NewWallet(), "BBBB000000000000000000000000000000000002")
	require.Error(t, err)
	require.Contains(t, err.Error(), "signature verification failed")
}

func TestGetCollectorCollectionsSkipsUnresolvable(t *testing.T) {
	records := map[uint64]ledger.CollectionRecord{
		1: {ID: 1, HerbName: "Tulsi", Quantity: "2kg"},
		3: {ID: 3, HerbName: "Neem", Quantity: "4kg"},
	}
	rpc := &fakeRPC{
		queryFn: func(path string, data tmbytes.HexBytes) (*cmtrpctypes.ResultABCIQuery, error) {
			switch path {
			case app.QueryCollector:
				return queryResult(app.CodeOK, []uint64{1, 2, 3}), nil
			case app.QueryCollection:
				id, err := strconv.ParseUint(string(data), 10, 64)
				require.NoError(t, err)
				record, ok := records[id]
				if !ok {
					return &cmtrpctypes.ResultABCIQuery{
						Response: abcitypes.QueryResponse{Code: app.CodeNotFound, Log: ledger.ErrNotFound.Error()},
					}, nil
				}
				return queryResult(app.CodeOK, record), nil
			}
			t.Fatalf("unexpected query path %s", path)
			return nil, nil
		},
	}
	c := NewClient(rpc, testDescriptor(), cmtlog.NewNopLogger())

	got, skipped, err := c.GetCollectorCollections(context.Background(), "CCCC000000000000000000000000000000000003")
	require.NoError(t, err)
	require.Equal(t, 1, skipped)
	require.Len(t, got, 2)
	require.Equal(t, "Tulsi", got[0].HerbName)
	require.Equal(t, "Neem", got[1].HerbName)
}

func TestQueryReads(t *testing.T) {
	rpc := &fakeRPC{
		queryFn: func(path string, data tmbytes.HexBytes) (*cmtrpctypes.ResultABCIQuery, error) {
			switch path {
			case app.QueryCollections:
				return queryResult(app.CodeOK, []ledger.CollectionRecord{{ID: 1}, {ID: 2}}), nil
			case app.QueryTotal:
				return queryResult(app.CodeOK, uint64(2)), nil
			case app.QueryOwner:
				return queryResult(app.CodeOK, identity.Address("AAAA000000000000000000000000000000000001")), nil
			}
			t.Fatalf("unexpected query path %s", path)
			return nil, nil
		},
	}
	c := NewClient(rpc, testDescriptor(), cmtlog.NewNopLogger())
	ctx := context.Background()

	all, err := c.GetAllCollections(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	total, err := c.GetTotalCollections(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), total)

	owner, err := c.Owner(ctx)
	require.NoError(t, err)
	require.Equal(t, identity.Address("AAAA000000000000000000000000000000000001"), owner)
}

func TestDescriptorRoundTrip(t *testing.T) {
	path := t.TempDir() + "/ledger-descriptor.json"

	missing, err := LoadDescriptor(path)
	require.NoError(t, err)
	require.Nil(t, missing)

	desc := testDescriptor()
	require.NoError(t, SaveDescriptor(path, desc))

	loaded, err := LoadDescriptor(path)
	require.NoError(t, err)
	require.Equal(t, desc.ChainID, loaded.ChainID)
	require.Equal(t, desc.Owner, loaded.Owner)
}
