package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quantityRequest struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"gte=0,lte=999"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Internal  string `json:"-"`
}

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(quantityRequest{ProductID: "7", Quantity: 2}))
}

func TestValidate_FieldErrorsUseJSONNames(t *testing.T) {
	err := Validate(quantityRequest{Quantity: 1000, Email: "nope"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)

	fields := valErr.Fields()
	assert.Equal(t, []string{"is required"}, fields["product_id"])
	assert.Equal(t, []string{"must be less than or equal to 999"}, fields["quantity"])
	assert.Equal(t, []string{"must be a valid email address"}, fields["email"])
	assert.Contains(t, valErr.Error(), "field 'product_id' is required")
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"product_id":"7","quantity":3}`},
		{name: "malformed json", body: `{"product_id":`, wantErr: "decode request body"},
		{name: "unknown field", body: `{"product_id":"7","qty":3}`, wantErr: "unknown field"},
		{name: "validation failure", body: `{"quantity":-1}`, wantErr: "field 'product_id' is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst quantityRequest
			err := DecodeAndValidate(req, &dst)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "7", dst.ProductID)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
