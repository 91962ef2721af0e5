package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
)

type sampleBody struct {
	Email  string `json:"email" validate:"required,email"`
	Amount string `json:"amount" validate:"required,positive_decimal"`
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"m@x.com","amount":"10.50"}`))
	var body sampleBody
	require.NoError(t, DecodeJSONBody(req, &body))
	assert.Equal(t, "m@x.com", body.Email)
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"m@x.com","amount":"1","extra":true}`))
	var body sampleBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"nope","amount":"-1"}`))
	var body sampleBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)

	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be a valid email", details["email"])
	assert.Equal(t, "must be a positive decimal", details["amount"])
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/?limit=20", nil)
	v, err := ParseQueryInt(req, "limit", 50, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, v)

	v, err = ParseQueryInt(httptest.NewRequest("GET", "/", nil), "limit", 50, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 50, v)

	_, err = ParseQueryInt(httptest.NewRequest("GET", "/?limit=500", nil), "limit", 50, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseQueryInt(httptest.NewRequest("GET", "/?limit=abc", nil), "limit", 50, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseUUID(t *testing.T) {
	_, err := ParseUUID("id", "not-a-uuid")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	id, err := ParseUUID("id", " 6f1c2b1e-4a3d-4c5e-9f00-0123456789ab ")
	require.NoError(t, err)
	assert.Equal(t, "6f1c2b1e-4a3d-4c5e-9f00-0123456789ab", id.String())
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "refund requested", SanitizeString("  refund\x00 requested \n", 0))
	assert.Equal(t, "héllo", SanitizeString("héllo wörld", 5))
	assert.Equal(t, "", SanitizeString("   ", 10))
}
