package testlist

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"slices"
	"strings"
)

// Strategy selects how items are assigned to static shards
type Strategy string

const (
	// StrategyAlpha splits the name-sorted list into contiguous,
	// near-equal ranges
	StrategyAlpha Strategy = "alpha"

	// StrategyHash assigns each item by a hash of its name, so adding a
	// test does not move the others. Shards may be uneven or empty.
	StrategyHash Strategy = "hash"
)

// ParseStrategy parses a strategy name; empty means StrategyAlpha
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(s)) {
	case "", StrategyAlpha:
		return StrategyAlpha, nil
	case StrategyHash:
		return StrategyHash, nil
	default:
		return "", fmt.Errorf("unknown shard strategy %q (want alpha or hash)", s)
	}
}

// Shard is the part of a test list assigned to one machine
type Shard struct {
	Index    int    `yaml:"index" json:"index"`
	Total    int    `yaml:"total" json:"total"`
	Included []Item `yaml:"included" json:"included"`
	Excluded []Item `yaml:"excluded,omitempty" json:"excluded,omitempty"`
}

// Split computes the items belonging to shard index of total. Every item
// lands in exactly one shard.
func Split(items []Item, index, total int, strategy Strategy) (*Shard, error) {
	if total < 1 {
		return nil, fmt.Errorf("total shards must be positive, got %d", total)
	}
	if index < 0 || index >= total {
		return nil, fmt.Errorf("shard index %d out of range [0, %d)", index, total)
	}

	switch strategy {
	case "", StrategyAlpha:
		return splitAlpha(items, index, total), nil
	case StrategyHash:
		return splitHash(items, index, total), nil
	default:
		return nil, fmt.Errorf("unknown shard strategy %q", strategy)
	}
}

func splitAlpha(items []Item, index, total int) *Shard {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b Item) int {
		return strings.Compare(a.Name, b.Name)
	})

	span := len(sorted) / total
	remaining := len(sorted) % total

	// The first `remaining` shards take one extra item, so 9 items over 4
	// shards split 3+2+2+2 rather than 3+3+3+0.
	start := index*span + min(index, remaining)
	end := start + span
	if index < remaining {
		end++
	}

	shard := &Shard{Index: index, Total: total}
	shard.Included = append(shard.Included, sorted[start:end]...)
	shard.Excluded = append(append(shard.Excluded, sorted[:start]...), sorted[end:]...)
	return shard
}

func splitHash(items []Item, index, total int) *Shard {
	shard := &Shard{Index: index, Total: total}
	mod := big.NewInt(int64(total))

	for _, it := range items {
		sum := sha256.Sum256([]byte(it.Name))
		n := new(big.Int).SetBytes(sum[:])
		n.Mod(n, mod)

		if int(n.Int64()) == index {
			shard.Included = append(shard.Included, it)
		} else {
			shard.Excluded = append(shard.Excluded, it)
		}
	}
	return shard
}
