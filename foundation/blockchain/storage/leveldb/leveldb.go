// Package leveldb implements the block store on a LevelDB database. Blocks
// are keyed by big-endian height so iteration yields chain order.
package leveldb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/trinitychain/trinitychain/foundation/blockchain/chain"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
)

// blockPrefix namespaces block records from metadata records.
const blockPrefix = "b/"

// Metadata keys.
const (
	keyHeight = "meta/height"
	keyTip    = "meta/tip"
)

// Store provides durable block storage on LevelDB.
type Store struct {
	db *leveldb.DB
}

// New opens (or creates) the database at path.
func New(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("opening block store at %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes a block and its metadata in one synced batch so the write
// is durable before Append returns.
func (s *Store) Append(block chain.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("encoding block %d: %w", block.Header.Height, err)
	}

	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], block.Header.Height)

	batch := new(leveldb.Batch)
	batch.Put(blockKey(block.Header.Height), data)
	batch.Put([]byte(keyHeight), heightBuf[:])
	batch.Put([]byte(keyTip), block.BlockHash[:])

	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("writing block %d: %w", block.Header.Height, err)
	}

	return nil
}

// LoadAll reads every stored block in height order.
func (s *Store) LoadAll() ([]chain.Block, error) {
	var blocks []chain.Block

	iter := s.db.NewIterator(util.BytesPrefix([]byte(blockPrefix)), nil)
	defer iter.Release()

	for iter.Next() {
		var block chain.Block
		if err := json.Unmarshal(iter.Value(), &block); err != nil {
			return nil, fmt.Errorf("decoding block at key %q: %w", iter.Key(), err)
		}
		blocks = append(blocks, block)
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterating block store: %w", err)
	}

	return blocks, nil
}

// Height returns the height of the latest stored block.
func (s *Store) Height() (uint64, error) {
	data, err := s.db.Get([]byte(keyHeight), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("reading stored height: %w", err)
	}
	return binary.BigEndian.Uint64(data), nil
}

// Tip returns the hash of the latest stored block.
func (s *Store) Tip() (transaction.Hash, error) {
	data, err := s.db.Get([]byte(keyTip), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return transaction.Hash{}, nil
		}
		return transaction.Hash{}, fmt.Errorf("reading stored tip: %w", err)
	}

	var tip transaction.Hash
	copy(tip[:], data)
	return tip, nil
}

// blockKey builds the ordered key for a block height.
func blockKey(height uint64) []byte {
	key := make([]byte, len(blockPrefix)+8)
	copy(key, blockPrefix)
	binary.BigEndian.PutUint64(key[len(blockPrefix):], height)
	return key
}
