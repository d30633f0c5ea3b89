package redis

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeyPrefixFactors is the prefix for cached factor payloads
const KeyPrefixFactors = "appendix:factors:"

// FactorsKey returns the Redis key for a response cache key.
// Addresses are hashed so arbitrary user text never reaches a key name.
func FactorsKey(cacheKey string) string {
	return fmt.Sprintf("%s%016x", KeyPrefixFactors, xxhash.Sum64String(cacheKey))
}

// IsFactorsKey reports whether key belongs to the response cache.
func IsFactorsKey(key string) bool {
	return strings.HasPrefix(key, KeyPrefixFactors) && len(key) == len(KeyPrefixFactors)+16
}
