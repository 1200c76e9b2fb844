package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/require"

	"github.com/JunaidCD/AyurherbX-sub001/client"
	"github.com/JunaidCD/AyurherbX-sub001/identity"
	"github.com/JunaidCD/AyurherbX-sub001/ledger"
)

// stubChain scripts chain-client behavior per test.
type stubChain struct {
	descriptor *client.Descriptor
	submitErr  error
	verifyErr  error
	ownerErr   error
	getErr     error
	records    []ledger.CollectionRecord
	skipped    int
}

func (s *stubChain) Descriptor() *client.Descriptor { return s.descriptor }

func (s *stubChain) SubmitCollection(_ context.Context, _ *identity.Wallet, _ ledger.SubmitPayload) (*client.TxResult, error) {
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &client.TxResult{TxHash: "abc123", CollectionID: 1, BlockHeight: 2, GasUsed: 21}, nil
}

func (s *stubChain) VerifyCollection(_ context.Context, _ *identity.Wallet, id uint64) (*client.TxResult, error) {
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return &client.TxResult{TxHash: "def456", CollectionID: id, BlockHeight: 3}, nil
}

func (s *stubChain) UpdateOwner(_ context.Context, _ *identity.Wallet, _ identity.Address) (*client.TxResult, error) {
	if s.ownerErr != nil {
		return nil, s.ownerErr
	}
	return &client.TxResult{TxHash: "789abc", BlockHeight: 4}, nil
}

func (s *stubChain) GetCollection(_ context.Context, id uint64) (*ledger.CollectionRecord, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	for i := range s.records {
		if s.records[i].ID == id {
			return &s.records[i], nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (s *stubChain) GetCollectorCollections(_ context.Context, _ identity.Address) ([]ledger.CollectionRecord, int, error) {
	if s.getErr != nil {
		return nil, 0, s.getErr
	}
	return s.records, s.skipped, nil
}

func (s *stubChain) GetAllCollections(_ context.Context) ([]ledger.CollectionRecord, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.records, nil
}

func (s *stubChain) GetTotalCollections(_ context.Context) (uint64, error) {
	if s.getErr != nil {
		return 0, s.getErr
	}
	return uint64(len(s.records)), nil
}

func (s *stubChain) Owner(_ context.Context) (identity.Address, error) {
	return "AAAA000000000000000000000000000000000001", nil
}

func deployedStub() *stubChain {
	return &stubChain{
		descriptor: &client.Descriptor{
			ChainID:    "ayurherb-test",
			Network:    "ayurherb-local",
			Owner:      "AAAA000000000000000000000000000000000001",
			DeployedAt: time.Now().UTC(),
		},
	}
}

func setupServer(t *testing.T, chain LedgerClient) http.Handler {
	t.Helper()
	ws, err := NewWebServer(chain, identity.NewWallet(), nil, "0", cmtlog.NewNopLogger(), nil)
	require.NoError(t, err)
	return ws.Handler()
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(bodyBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reqBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func validSubmitBody() map[string]interface{} {
	return map[string]interface{}{
		"collectionData": map[string]string{
			"herbName": "Ashwagandha",
			"quantity": "25kg",
			"batchId":  "BAT-2024-001",
			"location": "Kerala, India",
			"notes":    "High quality organic herbs",
		},
	}
}

func TestSubmitCollection(t *testing.T) {
	handler := setupServer(t, deployedStub())

	rec := doRequest(t, handler, "POST", "/submit-collection", validSubmitBody())
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	require.Equal(t, float64(1), data["collectionId"])
	require.Equal(t, "abc123", data["transactionHash"])
}

func TestSubmitCollectionValidation(t *testing.T) {
	chain := deployedStub()
	handler := setupServer(t, chain)

	for _, missing := range []string{"herbName", "quantity", "batchId", "location"} {
		body := validSubmitBody()
		body["collectionData"].(map[string]string)[missing] = ""
		rec := doRequest(t, handler, "POST", "/submit-collection", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "missing %s", missing)
		require.Equal(t, "validation", decodeBody(t, rec)["error"])
	}

	req := httptest.NewRequest("POST", "/submit-collection", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitCollectionNotDeployed(t *testing.T) {
	chain := deployedStub()
	chain.submitErr = client.ErrNotDeployed
	handler := setupServer(t, chain)

	rec := doRequest(t, handler, "POST", "/submit-collection", validSubmitBody())
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_deployed", decodeBody(t, rec)["error"])
}

func TestGetCollection(t *testing.T) {
	chain := deployedStub()
	chain.records = []ledger.CollectionRecord{{ID: 5, HerbName: "Tulsi", Quantity: "2kg"}}
	handler := setupServer(t, chain)

	rec := doRequest(t, handler, "GET", "/collection/5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Tulsi", decodeBody(t, rec)["herbName"])

	rec = doRequest(t, handler, "GET", "/collection/99", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found", decodeBody(t, rec)["error"])

	rec = doRequest(t, handler, "GET", "/collection/abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCollectorCollections(t *testing.T) {
	chain := deployedStub()
	chain.records = []ledger.CollectionRecord{{ID: 1}, {ID: 3}}
	chain.skipped = 1
	handler := setupServer(t, chain)

	rec := doRequest(t, handler, "GET", "/collector/BBBB000000000000000000000000000000000002", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Len(t, body["collections"], 2)
	require.Equal(t, float64(1), body["skipped"])
}

func TestVerifyCollection(t *testing.T) {
	chain := deployedStub()
	handler := setupServer(t, chain)

	rec := doRequest(t, handler, "POST", "/verify-collection/7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"])
	require.Equal(t, float64(7), body["data"].(map[string]interface{})["collectionId"])

	rec = doRequest(t, handler, "POST", "/verify-collection/abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyCollectionErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		category string
	}{
		{"missing record", ledger.ErrNotFound, http.StatusNotFound, "not_found"},
		{"double verification", ledger.ErrAlreadyVerified, http.StatusConflict, "conflict"},
		{"non-owner caller", ledger.ErrNotOwner, http.StatusForbidden, "unauthorized"},
		{"not deployed", client.ErrNotDeployed, http.StatusNotFound, "not_deployed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chain := deployedStub()
			chain.verifyErr = tc.err
			handler := setupServer(t, chain)

			rec := doRequest(t, handler, "POST", "/verify-collection/1", nil)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.category, decodeBody(t, rec)["error"])
		})
	}
}

func TestUpdateOwner(t *testing.T) {
	chain := deployedStub()
	handler := setupServer(t, chain)

	rec := doRequest(t, handler, "POST", "/update-owner", map[string]string{
		"newOwner": "CCCC000000000000000000000000000000000003",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, "POST", "/update-owner", map[string]string{
		"newOwner": string(identity.ZeroAddress),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	chain.ownerErr = ledger.ErrNotOwner
	rec = doRequest(t, handler, "POST", "/update-owner", map[string]string{
		"newOwner": "CCCC000000000000000000000000000000000003",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListingEndpoints(t *testing.T) {
	chain := deployedStub()
	chain.records = []ledger.CollectionRecord{{ID: 1}, {ID: 2}}
	handler := setupServer(t, chain)

	rec := doRequest(t, handler, "GET", "/collections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []ledger.CollectionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 2)

	rec = doRequest(t, handler, "GET", "/collections/total", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(2), decodeBody(t, rec)["total"])
}

func TestContractInfo(t *testing.T) {
	handler := setupServer(t, deployedStub())
	rec := doRequest(t, handler, "GET", "/contract-info", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ayurherb-test", decodeBody(t, rec)["chainId"])

	handler = setupServer(t, &stubChain{})
	rec = doRequest(t, handler, "GET", "/contract-info", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_deployed", decodeBody(t, rec)["error"])
}

func TestStatusAndHistory(t *testing.T) {
	handler := setupServer(t, deployedStub())

	rec := doRequest(t, handler, "GET", "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "online", body["status"])
	require.Equal(t, true, body["deployed"])

	// No mirror connected
	rec = doRequest(t, handler, "GET", "/history", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouting(t *testing.T) {
	handler := setupServer(t, deployedStub())

	rec := doRequest(t, handler, "GET", "/no-such-route", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, handler, "DELETE", "/collections", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
