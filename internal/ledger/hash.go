package ledger

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// genesisHash anchors the chain; the first record's PrevHash.
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// computeHash commits a record to the chain: BLAKE2b-256 over the previous
// record's hash plus this record's identifying payload. Any later mutation of
// a stored record, or removal of a record from the middle, breaks every
// subsequent hash.
func computeHash(prevHash string, r *DecisionRecord) string {
	h, _ := blake2b.New256(nil)

	h.Write([]byte(prevHash))
	h.Write([]byte(r.ID.String()))

	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], uint64(r.SequenceNumber))
	h.Write(seq[:])

	h.Write([]byte(r.DecisionType))
	if r.AssetID != nil {
		h.Write([]byte(r.AssetID.String()))
	}
	h.Write([]byte(r.SubjectID))
	h.Write(r.InputSnapshot)
	h.Write(r.RuleVersions)
	h.Write([]byte(r.Result))
	h.Write([]byte(r.DecidedBy))

	var at [8]byte
	binary.BigEndian.PutUint64(at[:], uint64(r.DecidedAt.UnixNano()))
	h.Write(at[:])

	return hex.EncodeToString(h.Sum(nil))
}

// seal assigns the chain fields given the predecessor's hash.
func seal(prevHash string, r *DecisionRecord) {
	if prevHash == "" {
		prevHash = genesisHash
	}
	r.PrevHash = prevHash
	r.RecordHash = computeHash(prevHash, r)
}
