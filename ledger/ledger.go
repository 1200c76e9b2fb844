package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/JunaidCD/AyurherbX-sub001/identity"
)

// Badger keyspace. Collection keys use a fixed-width decimal suffix so that
// lexicographic iteration order matches id order; the per-collector index
// uses the same suffix to preserve submission order.
const (
	keyNextID = "next_id"
	keyOwner  = "owner"

	collectionKeyFmt = "collection:%016d"
	collectorKeyFmt  = "collector:%s:%016d"
	collectionPrefix = "collection:"
)

// Ledger is the authoritative store of collection records. Write methods
// operate inside a caller-supplied Badger transaction so the ABCI layer can
// execute a whole block atomically; read methods open their own read view.
type Ledger struct {
	db *badger.DB
}

func NewLedger(db *badger.DB) *Ledger {
	return &Ledger{db: db}
}

// InitOwner sets the ledger owner if none is recorded yet. Called once at
// chain initialization; a later InitOwner against a populated ledger is a
// no-op so node restarts are harmless.
func (l *Ledger) InitOwner(txn *badger.Txn, owner identity.Address) error {
	_, err := txn.Get([]byte(keyOwner))
	if err == nil {
		return nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	if owner.IsZero() {
		return ErrZeroOwner
	}
	return txn.Set([]byte(keyOwner), []byte(owner))
}

// SubmitCollection appends a new unverified record and returns it. The
// collector identity and block time come from the consensus layer, never
// from the payload.
func (l *Ledger) SubmitCollection(txn *badger.Txn, p SubmitPayload, collector identity.Address, blockTime time.Time) (*CollectionRecord, error) {
	if p.HerbName == "" || p.Quantity == "" {
		return nil, ErrEmptyField
	}

	id, err := l.nextID(txn)
	if err != nil {
		return nil, err
	}

	record := &CollectionRecord{
		ID:        id,
		HerbName:  p.HerbName,
		Quantity:  p.Quantity,
		BatchID:   p.BatchID,
		Location:  p.Location,
		Notes:     p.Notes,
		Collector: collector,
		Timestamp: blockTime,
		Verified:  false,
	}

	if err := putRecord(txn, record); err != nil {
		return nil, err
	}

	indexKey := fmt.Sprintf(collectorKeyFmt, collector, id)
	if err := txn.Set([]byte(indexKey), uint64ToBytes(id)); err != nil {
		return nil, err
	}

	return record, nil
}

// VerifyCollection flips the verification flag of an existing, unverified
// record. Only the current owner may verify; the transition is terminal.
func (l *Ledger) VerifyCollection(txn *badger.Txn, id uint64, caller identity.Address, blockTime time.Time) (*CollectionRecord, error) {
	owner, err := l.owner(txn)
	if err != nil {
		return nil, err
	}
	if caller != owner {
		return nil, ErrNotOwner
	}

	record, err := getRecord(txn, id)
	if err != nil {
		return nil, err
	}
	if record.Verified {
		return nil, ErrAlreadyVerified
	}

	record.Verified = true
	record.VerifiedBy = caller
	record.VerifiedAt = &blockTime

	if err := putRecord(txn, record); err != nil {
		return nil, err
	}
	return record, nil
}

// UpdateOwner reassigns the privileged identity. Only the current owner may
// reassign, and never to the zero address.
func (l *Ledger) UpdateOwner(txn *badger.Txn, newOwner, caller identity.Address) error {
	owner, err := l.owner(txn)
	if err != nil {
		return err
	}
	if caller != owner {
		return ErrNotOwner
	}
	if newOwner.IsZero() {
		return ErrZeroOwner
	}
	return txn.Set([]byte(keyOwner), []byte(newOwner))
}

// GetCollection returns the record with the given id.
func (l *Ledger) GetCollection(id uint64) (*CollectionRecord, error) {
	var record *CollectionRecord
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		record, err = getRecord(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetCollectorCollections returns the ids submitted by the given collector,
// in submission order.
func (l *Ledger) GetCollectorCollections(collector identity.Address) ([]uint64, error) {
	prefix := []byte(fmt.Sprintf("collector:%s:", collector))
	var ids []uint64
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				ids = append(ids, bytesToUint64(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// GetAllCollections returns every record in ascending id order.
func (l *Ledger) GetAllCollections() ([]CollectionRecord, error) {
	var records []CollectionRecord
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(collectionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record CollectionRecord
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetTotalCollections returns the count of records ever created.
func (l *Ledger) GetTotalCollections() (uint64, error) {
	var total uint64
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyNextID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			total = bytesToUint64(val) - 1
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Owner returns the current privileged identity, or the zero address if the
// ledger has not been initialized.
func (l *Ledger) Owner() (identity.Address, error) {
	var owner identity.Address
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		owner, err = l.owner(txn)
		return err
	})
	if err != nil {
		return "", err
	}
	return owner, nil
}

func (l *Ledger) owner(txn *badger.Txn) (identity.Address, error) {
	item, err := txn.Get([]byte(keyOwner))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return identity.ZeroAddress, nil
		}
		return "", err
	}
	var owner identity.Address
	err = item.Value(func(val []byte) error {
		owner = identity.Address(val)
		return nil
	})
	return owner, err
}

// nextID reads, returns and advances the sequential id counter, starting at 1.
func (l *Ledger) nextID(txn *badger.Txn) (uint64, error) {
	id := uint64(1)
	item, err := txn.Get([]byte(keyNextID))
	if err == nil {
		err = item.Value(func(val []byte) error {
			id = bytesToUint64(val)
			return nil
		})
		if err != nil {
			return 0, err
		}
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return 0, err
	}

	if err := txn.Set([]byte(keyNextID), uint64ToBytes(id+1)); err != nil {
		return 0, err
	}
	return id, nil
}

func getRecord(txn *badger.Txn, id uint64) (*CollectionRecord, error) {
	item, err := txn.Get([]byte(fmt.Sprintf(collectionKeyFmt, id)))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var record CollectionRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func putRecord(txn *badger.Txn, record *CollectionRecord) error {
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return txn.Set([]byte(fmt.Sprintf(collectionKeyFmt, record.ID)), recordBytes)
}

// uint64ToBytes converts a uint64 to big-endian bytes
func uint64ToBytes(i uint64) []byte {
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

// bytesToUint64 converts big-endian bytes to a uint64
func bytesToUint64(buf []byte) uint64 {
	if len(buf) < 8 {
		return 0
	}

	return uint64(buf[0])<<56 |
		uint64(buf[1])<<48 |
		uint64(buf[2])<<40 |
		uint64(buf[3])<<32 |
		uint64(buf[4])<<24 |
		uint64(buf[5])<<16 |
		uint64(buf[6])<<8 |
		uint64(buf[7])
}
