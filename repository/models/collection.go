package models

import "time"

// Collection mirrors a confirmed on-chain collection record. The chain is
// authoritative; this row exists for off-chain reporting and audit queries.
type Collection struct {
	ID         uint64     `gorm:"column:collection_id;primaryKey" json:"id"`
	HerbName   string     `gorm:"column:herb_name;type:varchar(100);not null" json:"herbName"`
	Quantity   string     `gorm:"column:quantity;type:varchar(50);not null" json:"quantity"`
	BatchID    string     `gorm:"column:batch_id;type:varchar(100);index" json:"batchId"`
	Location   string     `gorm:"column:location;type:varchar(255)" json:"location"`
	Notes      string     `gorm:"column:notes;type:text" json:"notes"`
	Collector  string     `gorm:"column:collector;type:varchar(64);index" json:"collector"`
	Timestamp  time.Time  `gorm:"column:timestamp;not null" json:"timestamp"`
	Verified   bool       `gorm:"column:is_verified;default:false" json:"isVerified"`
	VerifiedBy *string    `gorm:"column:verified_by;type:varchar(64)" json:"verifiedBy,omitempty"`
	VerifiedAt *time.Time `gorm:"column:verified_at" json:"verifiedAt,omitempty"`

	// Relationships
	Txs []LedgerTx `gorm:"foreignKey:CollectionID" json:"-"`
}
