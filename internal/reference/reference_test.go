package reference

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFormat(t *testing.T) {
	gen := NewGenerator()

	ref, err := gen.Generate()
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^TX-\d{14}-[ABCDEFGHJKMNPQRSTVWXYZ0-9]{10}$`), ref)
}

func TestGenerateUniqueness(t *testing.T) {
	gen := NewGenerator()
	seen := make(map[string]struct{}, 100_000)

	for range 100_000 {
		ref, err := gen.Generate()
		require.NoError(t, err)
		if _, dup := seen[ref]; dup {
			t.Fatalf("duplicate reference generated: %s", ref)
		}
		seen[ref] = struct{}{}
	}
}
