package processing

import (
	"context"
	"testing"

	"github.com/mlindner/invoicescan/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeLookup records lookups against a fixed set of stored numbers,
// mimicking the three-way variant match of the real repository.
type fakeLookup struct {
	stored []string
	asked  []string
}

func (f *fakeLookup) ExistsVariant(ctx context.Context, n string) (bool, error) {
	f.asked = append(f.asked, n)
	for _, s := range f.stored {
		if s == n || hasPrefix(s, n) || hasSuffix(s, n) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLookup) ExistsVariantTx(ctx context.Context, q repository.Querier, n string) (bool, error) {
	return f.ExistsVariant(ctx, n)
}

func hasPrefix(s, p string) bool { return len(s) >= len(p) && s[:len(p)] == p }
func hasSuffix(s, p string) bool { return len(s) >= len(p) && s[len(s)-len(p):] == p }

func TestDuplicateDetectorMatchesVariants(t *testing.T) {
	lookup := &fakeLookup{stored: []string{"RE-2023-001"}}
	d := NewDuplicateDetector(lookup, zap.NewNop())

	tests := []struct {
		name   string
		number string
		want   bool
	}{
		{"exact", "RE-2023-001", true},
		{"prefix of stored", "RE-2023", true},
		{"suffix of stored", "2023-001", true},
		{"different", "RE-2023-0010", false},
		{"unrelated", "INV-9", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dup, err := d.IsDuplicate(context.Background(), tt.number)
			require.NoError(t, err)
			assert.Equal(t, tt.want, dup)
		})
	}
}

func TestDuplicateDetectorSkipsSentinels(t *testing.T) {
	lookup := &fakeLookup{stored: []string{"RE-1"}}
	d := NewDuplicateDetector(lookup, zap.NewNop())

	for _, sentinel := range []string{"", "Unknown", "Not found", "Nicht gefunden"} {
		dup, err := d.IsDuplicate(context.Background(), sentinel)
		require.NoError(t, err)
		assert.False(t, dup, "sentinel %q must never count as duplicate", sentinel)
	}
	// The database was never consulted for sentinels.
	assert.Empty(t, lookup.asked)
}
