// Package models defines the logical entities the synchronizer derives
// from the raw chain: blocks, transaction outputs, claims, supports,
// name takeovers, channel statistics and block filters. The relational
// schema backing these is owned by internal/store; these are the shapes
// that travel between the coordinator and its collaborators.
package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Hash is a 32-byte content hash, reused for both transaction and block
// identifiers. go-ethereum's common.Hash already provides the hex
// codec and zero-value semantics this needs.
type Hash = common.Hash

// HeightRange is an inclusive [Start, End] block height interval, used
// throughout the synchronizer for "the range this advance cycle added."
type HeightRange struct {
	Start uint64
	End   uint64
}

// Len returns the number of heights covered by the range.
func (r HeightRange) Len() uint64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Block is a single indexed block header plus bookkeeping for which
// file it came from and whether its compact filter has been generated.
type Block struct {
	Height     uint64
	Hash       Hash
	FileNumber int
	TxCount    int
	Filter     []byte // nil until the filter phase fills it in
}

// TXOType enumerates the LBRY output script templates the synchronizer
// cares about. Values are owned by internal/store/constants.go; this
// type just gives them a name in the shared model.
type TXOType int

// TXO is a transaction output, keyed by (TxHash, Position). SpentHeight
// is nil while the output is unspent.
type TXO struct {
	TxHash      Hash
	Position    int
	Type        TXOType
	Amount      *big.Int
	Script      []byte
	Height      uint64
	SpentHeight *uint64
}

// Unspent reports whether the output has not yet been consumed by a
// later block.
func (t TXO) Unspent() bool {
	return t.SpentHeight == nil
}

// Claim is a named on-chain assertion (channel or content claim).
type Claim struct {
	ClaimID        string
	Name           string
	IsChannel      bool
	ChannelClaimID string // empty if not signed by a channel
	TxHash         Hash
	Position       int
	Amount         *big.Int
	SupportTotal   *big.Int
	TakeoverHeight uint64
	CreatedHeight  uint64
	UpdatedHeight  uint64
}

// Support is a stake contribution to a claim.
type Support struct {
	TxHash   Hash
	Position int
	ClaimID  string
	Amount   *big.Int
	Height   uint64
}

// NameTakeover records the winning claim for a name as of a height.
type NameTakeover struct {
	Name           string
	ClaimID        string
	TakeoverHeight uint64
}

// ChannelStats holds aggregate content statistics for a channel claim.
type ChannelStats struct {
	ChannelClaimID  string
	ContentCount    int
	AggregateAmount *big.Int
}

// FileProgress tracks the highest contiguous height indexed from a
// given block file, the unit invariant I1 is defined over.
type FileProgress struct {
	FileNumber int
	BestHeight int64 // -1 means nothing indexed yet from this file
}

// BlockFile describes a chain-reported block-file slice: how many
// blocks and transactions it holds and the highest height in it.
type BlockFile struct {
	FileNumber int
	BestHeight uint64
	TxCount    int
	BlockCount int
}

// FileQuery restricts a Chain.GetBlockFiles call to one file's suffix
// starting at StartHeight, matching synchronizer.py's "call
// get_block_files again limited to this file and current_height".
type FileQuery struct {
	FileNumber  int
	StartHeight uint64
	Restrict    bool
}

// Checkpoint is retained for compatibility with external light-client
// consumers that persist "last BlockEvent observed" rather than a full
// index; it is not consulted by the coordinator itself.
type Checkpoint struct {
	ServiceName string
	LastHeight  uint64
	LastHash    Hash
	UpdatedAt   time.Time
}
