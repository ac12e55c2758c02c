package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type choiceRequest struct {
	Choice string `json:"choice"`
}

func TestDecodeJSONRequest(t *testing.T) {
	var req choiceRequest
	r := httptest.NewRequest(http.MethodPost, "/game/choice", strings.NewReader(`{"choice":"rock"}`))
	require.NoError(t, DecodeJSONRequest(r, &req))
	assert.Equal(t, "rock", req.Choice)

	r = httptest.NewRequest(http.MethodPost, "/game/choice", strings.NewReader(`{"choice":"rock","cheat":true}`))
	assert.Error(t, DecodeJSONRequest(r, &req))

	r = httptest.NewRequest(http.MethodPost, "/game/choice", strings.NewReader(""))
	assert.ErrorIs(t, DecodeJSONRequest(r, &req), ErrEmptyBody)
}
