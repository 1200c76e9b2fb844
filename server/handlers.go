package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/JunaidCD/AyurherbX-sub001/client"
	"github.com/JunaidCD/AyurherbX-sub001/identity"
	"github.com/JunaidCD/AyurherbX-sub001/ledger"
)

type submitCollectionBody struct {
	Collection ledger.SubmitPayload `json:"collectionData"`
}

type updateOwnerBody struct {
	NewOwner identity.Address `json:"newOwner"`
}

// handleContractInfo reports the ledger deployment descriptor.
func (ws *WebServer) handleContractInfo(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	desc := ws.chain.Descriptor()
	if desc == nil {
		JSONError(w, "not_deployed", "Ledger is not deployed", http.StatusNotFound)
		return
	}

	info := map[string]interface{}{
		"chainId":    desc.ChainID,
		"network":    desc.Network,
		"owner":      desc.Owner,
		"deployedAt": desc.DeployedAt,
	}
	if ws.node != nil {
		info["nodeId"] = string(ws.node.NodeInfo().ID())
	}
	writeJSON(w, http.StatusOK, info)
}

// handleSubmitCollection validates the payload shape and forwards the
// submission to the ledger. Validation failures never reach the chain.
func (ws *WebServer) handleSubmitCollection(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	requestID, err := generateRequestID()
	if err != nil {
		JSONError(w, "internal", "Internal server error", http.StatusInternalServerError)
		ws.logger.Error("Failed to generate request ID", "err", err)
		return
	}

	var body submitCollectionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		JSONError(w, "validation", "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	p := body.Collection
	missing := ""
	switch {
	case p.HerbName == "":
		missing = "herbName"
	case p.Quantity == "":
		missing = "quantity"
	case p.BatchID == "":
		missing = "batchId"
	case p.Location == "":
		missing = "location"
	}
	if missing != "" {
		JSONError(w, "validation", "Missing required field: "+missing, http.StatusBadRequest)
		return
	}

	result, err := ws.chain.SubmitCollection(r.Context(), ws.wallet, p)
	if err != nil {
		ws.writeChainError(w, err)
		return
	}

	ws.logger.Info("Collection submitted",
		"request_id", requestID,
		"collection_id", result.CollectionID,
		"tx_hash", result.TxHash,
		"height", result.BlockHeight,
	)
	ws.mirrorSubmit(r, result)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"collectionId":    result.CollectionID,
			"transactionHash": result.TxHash,
			"blockNumber":     result.BlockHeight,
			"gasUsed":         result.GasUsed,
		},
	})
}

// handleGetCollection returns a single record by id.
func (ws *WebServer) handleGetCollection(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := strconv.ParseUint(params["id"], 10, 64)
	if err != nil {
		JSONError(w, "validation", "Collection id must be numeric", http.StatusBadRequest)
		return
	}

	record, err := ws.chain.GetCollection(r.Context(), id)
	if err != nil {
		ws.writeChainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleGetCollectorCollections returns the best-effort list of a
// collector's records, with the skipped count made explicit.
func (ws *WebServer) handleGetCollectorCollections(w http.ResponseWriter, r *http.Request, params map[string]string) {
	collector := identity.Address(params["address"])

	records, skipped, err := ws.chain.GetCollectorCollections(r.Context(), collector)
	if err != nil {
		ws.writeChainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"collections": records,
		"skipped":     skipped,
	})
}

// handleGetAllCollections returns every record, id ascending.
func (ws *WebServer) handleGetAllCollections(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	records, err := ws.chain.GetAllCollections(r.Context())
	if err != nil {
		ws.writeChainError(w, err)
		return
	}
	if records == nil {
		records = []ledger.CollectionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleGetTotal returns the count of records ever created.
func (ws *WebServer) handleGetTotal(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	total, err := ws.chain.GetTotalCollections(r.Context())
	if err != nil {
		ws.writeChainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"total": total})
}

// handleVerifyCollection submits an owner verification for the record.
func (ws *WebServer) handleVerifyCollection(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := strconv.ParseUint(params["id"], 10, 64)
	if err != nil {
		JSONError(w, "validation", "Collection id must be numeric", http.StatusBadRequest)
		return
	}

	result, err := ws.chain.VerifyCollection(r.Context(), ws.wallet, id)
	if err != nil {
		ws.writeChainError(w, err)
		return
	}

	ws.logger.Info("Collection verified", "collection_id", id, "tx_hash", result.TxHash)
	ws.mirrorVerify(id, result)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"collectionId":    id,
			"transactionHash": result.TxHash,
			"blockNumber":     result.BlockHeight,
			"gasUsed":         result.GasUsed,
		},
	})
}

// handleUpdateOwner reassigns the ledger's privileged identity.
func (ws *WebServer) handleUpdateOwner(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var body updateOwnerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		JSONError(w, "validation", "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.NewOwner.IsZero() {
		JSONError(w, "validation", ledger.ErrZeroOwner.Error(), http.StatusBadRequest)
		return
	}

	result, err := ws.chain.UpdateOwner(r.Context(), ws.wallet, body.NewOwner)
	if err != nil {
		ws.writeChainError(w, err)
		return
	}

	ws.logger.Info("Ledger owner updated", "new_owner", body.NewOwner, "tx_hash", result.TxHash)
	if ws.repository != nil && ws.repository.Connected() {
		if repoErr := ws.repository.MirrorOwnerUpdate(string(ws.wallet.Address()), string(body.NewOwner), result.TxHash, result.BlockHeight); repoErr != nil {
			ws.logger.Error("Mirroring owner update failed", "err", repoErr)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"newOwner":        body.NewOwner,
			"transactionHash": result.TxHash,
			"blockNumber":     result.BlockHeight,
		},
	})
}

// handleHistory serves the off-chain audit trail.
func (ws *WebServer) handleHistory(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if ws.repository == nil || !ws.repository.Connected() {
		JSONError(w, "unavailable", "Audit mirror is not connected", http.StatusServiceUnavailable)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	txs, repoErr := ws.repository.History(limit)
	if repoErr != nil {
		JSONError(w, "database", repoErr.Message, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// mirrorSubmit reflects a confirmed submission into the Postgres mirror.
// The chain is authoritative; mirror failures are logged, never surfaced.
func (ws *WebServer) mirrorSubmit(r *http.Request, result *client.TxResult) {
	if ws.repository == nil || !ws.repository.Connected() {
		return
	}
	record, err := ws.chain.GetCollection(r.Context(), result.CollectionID)
	if err != nil {
		ws.logger.Error("Reading back submitted collection for mirror", "id", result.CollectionID, "err", err)
		return
	}
	if repoErr := ws.repository.MirrorSubmit(record, result.TxHash, result.BlockHeight); repoErr != nil {
		ws.logger.Error("Mirroring submission failed", "id", result.CollectionID, "err", repoErr)
	}
}

func (ws *WebServer) mirrorVerify(id uint64, result *client.TxResult) {
	if ws.repository == nil || !ws.repository.Connected() {
		return
	}
	if repoErr := ws.repository.MirrorVerify(id, string(ws.wallet.Address()), result.TxHash, result.BlockHeight); repoErr != nil {
		ws.logger.Error("Mirroring verification failed", "id", id, "err", repoErr)
	}
}

// writeChainError maps chain-client errors to one consistent HTTP status
// scheme: not-found 404, conflict 409, unauthorized 403, bad input 400,
// missing deployment 404, everything else 500.
func (ws *WebServer) writeChainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, client.ErrNotDeployed):
		JSONError(w, "not_deployed", "Ledger is not deployed", http.StatusNotFound)
	case errors.Is(err, ledger.ErrNotFound):
		JSONError(w, "not_found", err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrAlreadyVerified):
		JSONError(w, "conflict", err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrNotOwner):
		JSONError(w, "unauthorized", err.Error(), http.StatusForbidden)
	case errors.Is(err, ledger.ErrEmptyField), errors.Is(err, ledger.ErrZeroOwner):
		JSONError(w, "validation", err.Error(), http.StatusBadRequest)
	case errors.Is(err, client.ErrResultUnavailable):
		JSONError(w, "result_unavailable", err.Error(), http.StatusInternalServerError)
	default:
		ws.logger.Error("Chain operation failed", "err", err)
		JSONError(w, "chain", err.Error(), http.StatusInternalServerError)
	}
}
