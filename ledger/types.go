package ledger

import (
	"time"

	"github.com/JunaidCD/AyurherbX-sub001/identity"
)

// Transaction types accepted by the ledger.
const (
	TxSubmitCollection = "submit_collection"
	TxVerifyCollection = "verify_collection"
	TxUpdateOwner      = "update_owner"
)

// Event types and attribute keys emitted alongside executed transactions.
// The chain client recovers the assigned collection id from the
// collection_submitted event, so these names are part of the wire contract.
const (
	EventCollectionSubmitted = "collection_submitted"
	EventCollectionVerified  = "collection_verified"
	EventOwnerUpdated        = "owner_updated"

	AttrCollectionID = "collection_id"
	AttrCollector    = "collector"
	AttrHerbName     = "herb_name"
	AttrBatchID      = "batch_id"
	AttrTimestamp    = "timestamp"
	AttrVerifier     = "verifier"
	AttrNewOwner     = "new_owner"
)

// CollectionRecord is a single herb collection entry. Identity fields are
// immutable once created; only the verification fields may transition, and
// only once.
type CollectionRecord struct {
	ID         uint64           `json:"id"`
	HerbName   string           `json:"herbName"`
	Quantity   string           `json:"quantity"`
	BatchID    string           `json:"batchId"`
	Location   string           `json:"location"`
	Notes      string           `json:"notes"`
	Collector  identity.Address `json:"collector"`
	Timestamp  time.Time        `json:"timestamp"`
	Verified   bool             `json:"isVerified"`
	VerifiedBy identity.Address `json:"verifiedBy,omitempty"`
	VerifiedAt *time.Time       `json:"verifiedAt,omitempty"`
}

// SubmitPayload is the payload of a submit_collection transaction.
type SubmitPayload struct {
	HerbName string `json:"herbName"`
	Quantity string `json:"quantity"`
	BatchID  string `json:"batchId"`
	Location string `json:"location"`
	Notes    string `json:"notes,omitempty"`
}

// VerifyPayload is the payload of a verify_collection transaction.
type VerifyPayload struct {
	CollectionID uint64 `json:"collectionId"`
}

// UpdateOwnerPayload is the payload of an update_owner transaction.
type UpdateOwnerPayload struct {
	NewOwner identity.Address `json:"newOwner"`
}
