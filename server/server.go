package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	nm "github.com/cometbft/cometbft/node"

	"github.com/JunaidCD/AyurherbX-sub001/client"
	"github.com/JunaidCD/AyurherbX-sub001/identity"
	"github.com/JunaidCD/AyurherbX-sub001/ledger"
	"github.com/JunaidCD/AyurherbX-sub001/repository"
)

// LedgerClient is the chain-client surface the facade depends on.
// *client.Client satisfies it; tests substitute a stub.
type LedgerClient interface {
	Descriptor() *client.Descriptor
	SubmitCollection(ctx context.Context, signer *identity.Wallet, payload ledger.SubmitPayload) (*client.TxResult, error)
	VerifyCollection(ctx context.Context, signer *identity.Wallet, id uint64) (*client.TxResult, error)
	UpdateOwner(ctx context.Context, signer *identity.Wallet, newOwner identity.Address) (*client.TxResult, error)
	GetCollection(ctx context.Context, id uint64) (*ledger.CollectionRecord, error)
	GetCollectorCollections(ctx context.Context, collector identity.Address) ([]ledger.CollectionRecord, int, error)
	GetAllCollections(ctx context.Context) ([]ledger.CollectionRecord, error)
	GetTotalCollections(ctx context.Context) (uint64, error)
	Owner(ctx context.Context) (identity.Address, error)
}

// WebServer handles HTTP requests
type WebServer struct {
	chain      LedgerClient
	wallet     *identity.Wallet
	repository *repository.Repository
	httpAddr   string
	server     *http.Server
	logger     cmtlog.Logger
	node       *nm.Node
	startTime  time.Time
	router     *Router
}

// NewWebServer creates a new web server. node may be nil when the facade
// runs detached from an embedded consensus node (tests do this).
func NewWebServer(chain LedgerClient, wallet *identity.Wallet, repo *repository.Repository, httpPort string, logger cmtlog.Logger, node *nm.Node) (*WebServer, error) {
	router := NewRouter()

	ws := &WebServer{
		chain:      chain,
		wallet:     wallet,
		repository: repo,
		httpAddr:   ":" + httpPort,
		server: &http.Server{
			Addr:    ":" + httpPort,
			Handler: router,
		},
		logger:    logger,
		node:      node,
		startTime: time.Now(),
		router:    router,
	}

	// Register routes
	router.Handle("GET", "/contract-info", ws.handleContractInfo)
	router.Handle("POST", "/submit-collection", ws.handleSubmitCollection)
	router.Handle("GET", "/collection/:id", ws.handleGetCollection)
	router.Handle("GET", "/collector/:address", ws.handleGetCollectorCollections)
	router.Handle("GET", "/collections", ws.handleGetAllCollections)
	router.Handle("GET", "/collections/total", ws.handleGetTotal)
	router.Handle("POST", "/verify-collection/:id", ws.handleVerifyCollection)
	router.Handle("POST", "/update-owner", ws.handleUpdateOwner)
	router.Handle("GET", "/history", ws.handleHistory)
	router.Handle("GET", "/status", ws.handleStatus)
	router.Handle("GET", "/debug", ws.handleDebug)

	return ws, nil
}

// Start starts the web server
func (ws *WebServer) Start() error {
	ws.logger.Info("Starting web server", "addr", ws.httpAddr)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Error("web server error: ", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the web server
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.logger.Info("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// handleStatus reports facade liveness and ledger deployment state.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	status := map[string]interface{}{
		"status":   "online",
		"uptime":   time.Since(ws.startTime).String(),
		"deployed": ws.chain.Descriptor() != nil,
	}
	if ws.node != nil {
		status["node_id"] = string(ws.node.NodeInfo().ID())
	}
	writeJSON(w, http.StatusOK, status)
}

// handleDebug provides node debugging information
func (ws *WebServer) handleDebug(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	debugInfo := map[string]interface{}{
		"uptime": time.Since(ws.startTime).String(),
	}

	if ws.node == nil {
		debugInfo["node_status"] = "detached"
		writeJSON(w, http.StatusOK, debugInfo)
		return
	}

	nodeStatus := "online"
	if ws.node.ConsensusReactor().WaitSync() {
		nodeStatus = "syncing"
	}
	if !ws.node.IsListening() {
		nodeStatus = "offline"
	}

	debugInfo["node_id"] = string(ws.node.NodeInfo().ID())
	debugInfo["node_status"] = nodeStatus
	debugInfo["p2p_address"] = ws.node.Config().P2P.ListenAddress
	debugInfo["rpc_address"] = ws.node.Config().RPC.ListenAddress

	outboundPeers, inboundPeers, dialingPeers := ws.node.Switch().NumPeers()
	debugInfo["num_peers_out"] = outboundPeers
	debugInfo["num_peers_in"] = inboundPeers
	debugInfo["num_peers_dialing"] = dialingPeers

	writeJSON(w, http.StatusOK, debugInfo)
}

func generateRequestID() (string, error) {
	bytes := make([]byte, 16)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// writeJSON sends an indented JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// JSONError sends a JSON formatted error response with a short category and
// a human-readable message.
func JSONError(w http.ResponseWriter, category, message string, statusCode int) {
	errorResponse := struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}{
		Error:   category,
		Message: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	jsonBytes, err := json.Marshal(errorResponse)
	if err != nil {
		w.Write([]byte(`{"error":"internal","message":"failed to encode error"}`))
		return
	}
	w.Write(jsonBytes)
}
