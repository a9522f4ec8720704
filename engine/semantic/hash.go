package semantic

import "github.com/cespare/xxhash/v2"

// PointID derives the Qdrant point id from a FAQ id. The hash is fixed
// across process runs, so re-upserting the same FAQ id always overwrites the
// same point. Reduced into [0, 2^31) for compatibility with signed 32-bit
// consumers; collisions across distinct FAQ ids are theoretically possible
// (~50% probability past ~54k ids) and accepted.
func PointID(faqID string) uint64 {
	return xxhash.Sum64String(faqID) % (1 << 31)
}
