package models

import "time"

// LedgerTx is the audit trail of write transactions the facade has seen
// confirmed on chain.
type LedgerTx struct {
	TxHash       string    `gorm:"column:tx_hash;type:varchar(66);primaryKey" json:"txHash"`
	Type         string    `gorm:"column:tx_type;type:varchar(30);not null" json:"type"`
	CollectionID *uint64   `gorm:"column:collection_id;index" json:"collectionId,omitempty"`
	BlockHeight  int64     `gorm:"column:block_height;not null" json:"blockHeight"`
	Signer       string    `gorm:"column:signer;type:varchar(64)" json:"signer"`
	Status       string    `gorm:"column:status;type:varchar(20);default:'confirmed'" json:"status"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}
