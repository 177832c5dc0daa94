package utils

import (
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
)

func TestGenUuidFromStrings(t *testing.T) {
	id := GenUuidFromStrings("alice", "USDC")
	assert.Equal(t, id, GenUuidFromStrings("alice", "USDC"))
	assert.Equal(t, uuid.V3, id.Version())
	assert.Equal(t, uuid.VariantRFC4122, id.Variant())

	assert.NotEqual(t, id, GenUuidFromStrings("USDC", "alice"))
	assert.NotEqual(t, GenUuidFromStrings("ab", "c"), GenUuidFromStrings("a", "bc"))
	assert.Equal(t, uuid.Nil, GenUuidFromStrings())
}
