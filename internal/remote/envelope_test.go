package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/sinaabedii/arian-etc-sub001/pkg/errors"
)

func TestUnwrapList_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"data array", `{"success":true,"data":[{"id":1},{"id":2}]}`, 2},
		{"data results", `{"success":true,"data":{"count":1,"results":[{"id":1}]}}`, 1},
		{"data items", `{"success":true,"data":{"items":[{"id":1},{"id":2},{"id":3}]}}`, 3},
		{"data cart_items", `{"success":true,"data":{"id":9,"cart_items":[{"id":1}]}}`, 1},
		{"results before items", `{"success":true,"data":{"results":[{"id":1}],"items":[]}}`, 1},
		{"bare array", `[{"id":1}]`, 1},
		{"null data", `{"success":true,"data":null}`, 0},
		{"no data", `{"success":true}`, 0},
		{"empty results", `{"success":true,"data":{"results":[]}}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := unwrapList([]byte(tt.body))
			require.NoError(t, err)
			assert.Len(t, rows, tt.want)
		})
	}
}

func TestUnwrapList_Malformed(t *testing.T) {
	for name, body := range map[string]string{
		"object without list": `{"success":true,"data":{"count":0}}`,
		"scalar data":         `{"success":true,"data":"oops"}`,
		"broken json":         `{"success":true,"data":[`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := unwrapList([]byte(body))
			assert.ErrorIs(t, err, apperrors.ErrDecode)
		})
	}
}

func TestUnwrapData_Failure(t *testing.T) {
	_, err := unwrapData([]byte(`{"success":false,"error":{"message":"out of stock","errors":{"quantity":["too many"]}}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRemote)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "out of stock", appErr.Message)
	assert.Equal(t, []string{"too many"}, appErr.Fields["quantity"])
}
