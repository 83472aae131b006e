package upstream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogueListsEveryTool(t *testing.T) {
	cat := DefaultCatalogue()
	list := cat.List()
	require.NotEmpty(t, list)

	_, ok := cat.Lookup("getSlot")
	assert.True(t, ok)
	_, ok = cat.Lookup("notARealTool")
	assert.False(t, ok)
}

func TestValidateRejectsMissingRequiredParam(t *testing.T) {
	cat := DefaultCatalogue()

	err := cat.Validate("getBalance", json.RawMessage(`{}`))
	assert.Error(t, err)

	err = cat.Validate("getBalance", json.RawMessage(`{"pubkey":"abc"}`))
	assert.NoError(t, err)
}

func TestValidateAllowsToolsWithNoRequiredParams(t *testing.T) {
	cat := DefaultCatalogue()
	assert.NoError(t, cat.Validate("getSlot", json.RawMessage(`{}`)))
	assert.NoError(t, cat.Validate("getSlot", nil))
}

func TestValidateUnknownTool(t *testing.T) {
	cat := DefaultCatalogue()
	err := cat.Validate("doesNotExist", json.RawMessage(`{}`))
	assert.Error(t, err)
}
