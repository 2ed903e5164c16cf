package store

import "github.com/lbryio/lbry-sync/pkg/models"

// TXO type codes, the fixed mapping the coordinator treats as opaque
// identifiers (spec §6: "owned by the DB constants module").
const (
	TXOTypeOther models.TXOType = iota
	TXOTypeChannel
	TXOTypeStream
	TXOTypeCollection
	TXOTypeRepost
	TXOTypeSupport
	TXOTypeUpdate
)

// ContentTypeCodes are the TXO types that count as "content" claims,
// as opposed to channel claims, for batching purposes.
var ContentTypeCodes = []models.TXOType{
	TXOTypeStream, TXOTypeCollection, TXOTypeRepost,
}
