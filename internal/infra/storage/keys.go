package storage

import (
	"strconv"
	"strings"

	"github.com/vietddude/chainmetrics/internal/core/domain"
)

// Key domains inside a chain namespace.
const (
	DomainDailyMetrics   = "daily-metrics"
	DomainDailyBlocks    = "daily-blocks"
	DomainDailyAddresses = "daily-active-addresses"
	DomainBlockMetrics   = "block-metrics"
	DomainDailyBoundary  = "daily-boundary"
)

// Keys builds store keys of the form {PREFIX}{domain}_{identifier}.
type Keys struct {
	prefix string
}

// NewKeys returns the key builder for a chain.
func NewKeys(chain domain.Chain) Keys {
	return Keys{prefix: chain.KeyPrefix()}
}

// Prefix returns the enumeration prefix for a key domain.
func (k Keys) Prefix(keyDomain string) string {
	return k.prefix + keyDomain + "_"
}

func (k Keys) BlockMetric(blockNumber uint64) string {
	return k.Prefix(DomainBlockMetrics) + strconv.FormatUint(blockNumber, 10)
}

func (k Keys) DailyMetric(date string) string {
	return k.Prefix(DomainDailyMetrics) + date
}

func (k Keys) DailyBlocks(date string) string {
	return k.Prefix(DomainDailyBlocks) + date
}

func (k Keys) DailyAddresses(date string) string {
	return k.Prefix(DomainDailyAddresses) + date
}

func (k Keys) DailyBoundary(date string) string {
	return k.Prefix(DomainDailyBoundary) + date
}

// Identifier strips the domain prefix from key. ok is false when key belongs
// to another domain.
func (k Keys) Identifier(keyDomain, key string) (string, bool) {
	p := k.Prefix(keyDomain)
	if !strings.HasPrefix(key, p) {
		return "", false
	}
	return strings.TrimPrefix(key, p), true
}
