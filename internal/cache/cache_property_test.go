//go:build property
// +build property

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestASTCacheProperties validates the cache bound invariants under
// arbitrary insertion sequences.
func TestASTCacheProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("entry count never exceeds the bound", prop.ForAll(
		func(maxEntries int, inserts int) bool {
			if maxEntries < 1 || maxEntries > 50 || inserts < 0 || inserts > 200 {
				return true
			}

			ac := NewASTCache(maxEntries, 1<<20, time.Hour, nil)
			ctx := context.Background()

			for i := 0; i < inserts; i++ {
				ac.Put(ctx, fmt.Sprintf("key%d", i), i)
				if ac.Stats().Entries > maxEntries {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 50),
		gen.IntRange(0, 200),
	))

	properties.Property("estimated memory never exceeds the bound", prop.ForAll(
		func(maxMemory int64, inserts int) bool {
			if maxMemory < 16 || maxMemory > 4096 || inserts < 0 || inserts > 100 {
				return true
			}

			ac := NewASTCache(1000, maxMemory, time.Hour, nil)
			ctx := context.Background()

			for i := 0; i < inserts; i++ {
				ac.Put(ctx, fmt.Sprintf("key%d", i), "0123456789")
				if ac.Stats().Memory > maxMemory {
					return false
				}
			}
			return true
		},
		gen.Int64Range(16, 4096),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
