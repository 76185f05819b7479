// Package leveldb is the on-disk Storage port implementation, backed by
// github.com/syndtr/goleveldb the same way the teacher's
// storage/database/leveldb_database.go backs klaytn's DBManager. Keys are
// namespaced by a single-byte table prefix per entity, mirroring the
// teacher's bloomBitsPrefix-style key construction.
package leveldb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/sbtc-core/signer/errs"
	"github.com/sbtc-core/signer/log"
	"github.com/sbtc-core/signer/metrics"
	"github.com/sbtc-core/signer/model"
	"github.com/sbtc-core/signer/storage"
)

var opsCounter = metrics.Counter("storage/leveldb/ops")

var errNoVotesIndex = errors.New("leveldb: vote tally column family not implemented")

var OpenFileLimit = 64

var logger = log.NewModuleLogger(log.Storage)

const (
	prefixBitcoinBlock byte = 'b'
	prefixStacksBlock  byte = 's'
	prefixDeposit      byte = 'd'
	prefixSBTCTx       byte = 't'
	prefixScriptPubKey byte = 'p'
	prefixDkgShares    byte = 'k'
	prefixKeyRotation  byte = 'r'
	prefixSignerUTXO   byte = 'u'
	prefixMeta         byte = 'm'
)

var keyTip = []byte{prefixMeta, 'T'}
var keyScriptPubKeyCount = []byte{prefixMeta, 'C'}
var keyDkgSharesCount = []byte{prefixMeta, 'D'}
var keyKeyRotationCount = []byte{prefixMeta, 'K'}

// DB is a goleveldb-backed Storage implementation.
type DB struct {
	db *leveldb.DB
}

func Open(path string) (*DB, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		OpenFilesCacheCapacity: OpenFileLimit,
	})
	if err != nil {
		return nil, errs.New(errs.Storage, "leveldb.open", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func bitcoinBlockKey(h model.BitcoinHash) []byte {
	return append([]byte{prefixBitcoinBlock}, h[:]...)
}

func stacksBlockKey(id model.StacksBlockID) []byte {
	return append([]byte{prefixStacksBlock}, id[:]...)
}

func depositKey(out model.Outpoint) []byte {
	buf := make([]byte, 1+32+4)
	buf[0] = prefixDeposit
	copy(buf[1:], out.Txid[:])
	binary.BigEndian.PutUint32(buf[33:], out.Vout)
	return buf
}

func (d *DB) NewBatch() storage.Batch {
	return &batch{d: d, b: new(leveldb.Batch)}
}

type batch struct {
	d             *DB
	b             *leveldb.Batch
	newTip        *model.BitcoinBlock
}

func (bt *batch) PutBitcoinBlock(blk model.BitcoinBlock) {
	raw, _ := json.Marshal(blk)
	bt.b.Put(bitcoinBlockKey(blk.Hash), raw)
	if bt.newTip == nil || blk.Height > bt.newTip.Height {
		cp := blk
		bt.newTip = &cp
	}
}

func (bt *batch) PutStacksBlock(blk model.StacksBlock) {
	raw, _ := json.Marshal(blk)
	bt.b.Put(stacksBlockKey(blk.ID), raw)
}

func (bt *batch) PutDepositRequest(dep model.DepositRequest) {
	raw, _ := json.Marshal(dep)
	bt.b.Put(depositKey(dep.Outpoint), raw)
}

func (bt *batch) PutSBTCTransaction(tx model.SBTCTransaction) {
	raw, _ := json.Marshal(tx)
	key := append([]byte{prefixSBTCTx}, tx.Txid[:]...)
	bt.b.Put(key, raw)
}

func (bt *batch) Commit(ctx context.Context) error {
	if bt.newTip != nil {
		cur, ok, err := bt.d.CanonicalBitcoinTip(ctx)
		if err != nil {
			return err
		}
		if !ok || bt.newTip.Height > cur.Height {
			raw, _ := json.Marshal(*bt.newTip)
			bt.b.Put(keyTip, raw)
		}
	}
	if err := bt.d.db.Write(bt.b, nil); err != nil {
		return errs.New(errs.Storage, "leveldb.commit", err)
	}
	opsCounter.Inc(1)
	logger.Debug("committed batch")
	return nil
}

func (d *DB) CanonicalBitcoinTip(ctx context.Context) (model.BitcoinBlock, bool, error) {
	raw, err := d.db.Get(keyTip, nil)
	if err == leveldb.ErrNotFound {
		return model.BitcoinBlock{}, false, nil
	}
	if err != nil {
		return model.BitcoinBlock{}, false, errs.New(errs.Storage, "leveldb.tip", err)
	}
	var tipHash model.BitcoinBlock
	if err := json.Unmarshal(raw, &tipHash); err != nil {
		return model.BitcoinBlock{}, false, errs.New(errs.Storage, "leveldb.tip.decode", err)
	}
	return tipHash, true, nil
}

func (d *DB) GetBitcoinBlock(ctx context.Context, hash model.BitcoinHash) (model.BitcoinBlock, bool, error) {
	raw, err := d.db.Get(bitcoinBlockKey(hash), nil)
	if err == leveldb.ErrNotFound {
		return model.BitcoinBlock{}, false, nil
	}
	if err != nil {
		return model.BitcoinBlock{}, false, errs.New(errs.Storage, "leveldb.get_block", err)
	}
	var b model.BitcoinBlock
	if err := json.Unmarshal(raw, &b); err != nil {
		return model.BitcoinBlock{}, false, errs.New(errs.Storage, "leveldb.get_block.decode", err)
	}
	return b, true, nil
}

func (d *DB) GetStacksBlock(ctx context.Context, id model.StacksBlockID) (model.StacksBlock, bool, error) {
	raw, err := d.db.Get(stacksBlockKey(id), nil)
	if err == leveldb.ErrNotFound {
		return model.StacksBlock{}, false, nil
	}
	if err != nil {
		return model.StacksBlock{}, false, errs.New(errs.Storage, "leveldb.get_stacks_block", err)
	}
	var b model.StacksBlock
	if err := json.Unmarshal(raw, &b); err != nil {
		return model.StacksBlock{}, false, errs.New(errs.Storage, "leveldb.get_stacks_block.decode", err)
	}
	return b, true, nil
}

func (d *DB) HasBitcoinBlock(ctx context.Context, hash model.BitcoinHash) (bool, error) {
	ok, err := d.db.Has(bitcoinBlockKey(hash), nil)
	if err != nil {
		return false, errs.New(errs.Storage, "leveldb.has_block", err)
	}
	return ok, nil
}

func (d *DB) HasStacksBlock(ctx context.Context, id model.StacksBlockID) (bool, error) {
	ok, err := d.db.Has(stacksBlockKey(id), nil)
	if err != nil {
		return false, errs.New(errs.Storage, "leveldb.has_stacks_block", err)
	}
	return ok, nil
}

func (d *DB) SignerScriptPubKeys(ctx context.Context) ([]model.SignerScriptPubKey, error) {
	iter := d.db.NewIterator(nil, nil)
	defer iter.Release()
	var out []model.SignerScriptPubKey
	for iter.Next() {
		key := iter.Key()
		if len(key) > 0 && key[0] == prefixScriptPubKey {
			spk := make(model.SignerScriptPubKey, len(iter.Value()))
			copy(spk, iter.Value())
			out = append(out, spk)
		}
	}
	return out, nil
}

func (d *DB) PutDepositRequest(ctx context.Context, dep model.DepositRequest) error {
	raw, _ := json.Marshal(dep)
	if err := d.db.Put(depositKey(dep.Outpoint), raw, nil); err != nil {
		return errs.New(errs.Storage, "leveldb.put_deposit", err)
	}
	return nil
}

func (d *DB) GetDepositRequest(ctx context.Context, out model.Outpoint) (model.DepositRequest, bool, error) {
	raw, err := d.db.Get(depositKey(out), nil)
	if err == leveldb.ErrNotFound {
		return model.DepositRequest{}, false, nil
	}
	if err != nil {
		return model.DepositRequest{}, false, errs.New(errs.Storage, "leveldb.get_deposit", err)
	}
	var dep model.DepositRequest
	if err := json.Unmarshal(raw, &dep); err != nil {
		return model.DepositRequest{}, false, errs.New(errs.Storage, "leveldb.get_deposit.decode", err)
	}
	return dep, true, nil
}

// PendingAcceptedDepositRequests and PendingAcceptedWithdrawalRequests
// require a vote tally that, per design §4.4, is sourced upstream of the
// Storage port. This implementation keeps no vote tally, so both methods
// always return an error wrapping errNoVotesIndex; memstore is the
// implementation that applies the threshold/window filter.
func (d *DB) PendingAcceptedDepositRequests(ctx context.Context, tip model.BitcoinHash, window uint64, threshold int) ([]model.AcceptedDeposit, error) {
	return nil, errs.New(errs.Storage, "leveldb.pending_deposits", errNoVotesIndex)
}

func (d *DB) PendingAcceptedWithdrawalRequests(ctx context.Context, tip model.BitcoinHash, window uint64, threshold int) ([]model.AcceptedWithdrawal, error) {
	return nil, errs.New(errs.Storage, "leveldb.pending_withdrawals", errNoVotesIndex)
}

func (d *DB) DepositsAwaitingStacksAck(ctx context.Context) ([]model.DepositRequest, error) {
	iter := d.db.NewIterator(nil, nil)
	defer iter.Release()
	var out []model.DepositRequest
	for iter.Next() {
		key := iter.Key()
		if len(key) == 0 || key[0] != prefixDeposit {
			continue
		}
		var dep model.DepositRequest
		if err := json.Unmarshal(iter.Value(), &dep); err != nil {
			continue
		}
		acked, _ := d.db.Has(append([]byte{prefixMeta, 'a'}, key[1:]...), nil)
		if !acked {
			out = append(out, dep)
		}
	}
	return out, nil
}

func (d *DB) MarkDepositAcknowledged(ctx context.Context, out model.Outpoint, stacksTxid model.BitcoinHash) error {
	key := append([]byte{prefixMeta, 'a'}, depositKey(out)[1:]...)
	if err := d.db.Put(key, stacksTxid[:], nil); err != nil {
		return errs.New(errs.Storage, "leveldb.ack_deposit", err)
	}
	return nil
}

func (d *DB) LatestEncryptedDkgShares(ctx context.Context) (model.EncryptedDkgShares, bool, error) {
	raw, err := d.db.Get(append([]byte{prefixDkgShares}, []byte("latest")...), nil)
	if err == leveldb.ErrNotFound {
		return model.EncryptedDkgShares{}, false, nil
	}
	if err != nil {
		return model.EncryptedDkgShares{}, false, errs.New(errs.Storage, "leveldb.latest_dkg", err)
	}
	var dto dkgSharesDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return model.EncryptedDkgShares{}, false, errs.New(errs.Storage, "leveldb.latest_dkg.decode", err)
	}
	return dto.toModel(), true, nil
}

func (d *DB) PutEncryptedDkgShares(ctx context.Context, shares model.EncryptedDkgShares) error {
	dto := dkgSharesFromModel(shares)
	raw, _ := json.Marshal(dto)
	if err := d.db.Put(append([]byte{prefixDkgShares}, []byte("latest")...), raw, nil); err != nil {
		return errs.New(errs.Storage, "leveldb.put_dkg", err)
	}
	if err := d.db.Put(append([]byte{prefixScriptPubKey}, shares.SignerScriptPubKey...), shares.SignerScriptPubKey, nil); err != nil {
		return errs.New(errs.Storage, "leveldb.put_dkg.script_pubkey", err)
	}
	return nil
}

func (d *DB) LatestKeyRotation(ctx context.Context) (model.KeyRotation, bool, error) {
	raw, err := d.db.Get(append([]byte{prefixKeyRotation}, []byte("latest")...), nil)
	if err == leveldb.ErrNotFound {
		return model.KeyRotation{}, false, nil
	}
	if err != nil {
		return model.KeyRotation{}, false, errs.New(errs.Storage, "leveldb.latest_rotation", err)
	}
	var dto keyRotationDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return model.KeyRotation{}, false, errs.New(errs.Storage, "leveldb.latest_rotation.decode", err)
	}
	return dto.toModel(), true, nil
}

func (d *DB) PutKeyRotation(ctx context.Context, rot model.KeyRotation) error {
	dto := keyRotationFromModel(rot)
	raw, _ := json.Marshal(dto)
	if err := d.db.Put(append([]byte{prefixKeyRotation}, []byte("latest")...), raw, nil); err != nil {
		return errs.New(errs.Storage, "leveldb.put_rotation", err)
	}
	return nil
}

func (d *DB) GetSignerUtxo(ctx context.Context) (model.SignerUtxo, bool, error) {
	raw, err := d.db.Get([]byte{prefixSignerUTXO}, nil)
	if err == leveldb.ErrNotFound {
		return model.SignerUtxo{}, false, nil
	}
	if err != nil {
		return model.SignerUtxo{}, false, errs.New(errs.Storage, "leveldb.signer_utxo", err)
	}
	var u model.SignerUtxo
	if err := json.Unmarshal(raw, &u); err != nil {
		return model.SignerUtxo{}, false, errs.New(errs.Storage, "leveldb.signer_utxo.decode", err)
	}
	return u, true, nil
}

func (d *DB) PutSignerUtxo(ctx context.Context, u model.SignerUtxo) error {
	raw, _ := json.Marshal(u)
	if err := d.db.Put([]byte{prefixSignerUTXO}, raw, nil); err != nil {
		return errs.New(errs.Storage, "leveldb.put_signer_utxo", err)
	}
	return nil
}

var _ storage.Storage = (*DB)(nil)
