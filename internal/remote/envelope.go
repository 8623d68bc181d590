package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/sinaabedii/arian-etc-sub001/pkg/errors"
	"github.com/sinaabedii/arian-etc-sub001/pkg/httpclient"
)

// envelope is the backend response wrapper {success, data?, error?}.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// listKeys are probed in order when data is an object wrapping the rows.
var listKeys = []string{"results", "items", "cart_items"}

// unwrapData returns the data member of an envelope. A body that is not an
// envelope is returned as is. success=false becomes an ErrRemote error.
func unwrapData(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return body, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.Decode(fmt.Sprintf("response envelope: %v", err))
	}
	if env.Success != nil && !*env.Success {
		eb, _ := httpclient.DecodeErrorBody(body)
		msg := eb.Message
		if msg == "" {
			msg = "backend reported failure"
		}
		return nil, apperrors.Remote(msg, eb.Errors)
	}
	if env.Success == nil && len(env.Data) == 0 {
		// Not an envelope; treat the whole object as the payload.
		return body, nil
	}
	return env.Data, nil
}

// unwrapList extracts the row list from a response body. Accepted shapes
// are data as an array, or data.results, data.items or data.cart_items.
// Absent or null data is an empty list.
func unwrapList(body []byte) ([]json.RawMessage, error) {
	data, err := unwrapData(body)
	if err != nil {
		return nil, err
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	switch data[0] {
	case '[':
		var rows []json.RawMessage
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, apperrors.Decode(fmt.Sprintf("row list: %v", err))
		}
		return rows, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, apperrors.Decode(fmt.Sprintf("data object: %v", err))
		}
		for _, k := range listKeys {
			raw, ok := obj[k]
			if !ok {
				continue
			}
			var rows []json.RawMessage
			if err := json.Unmarshal(raw, &rows); err != nil {
				continue
			}
			return rows, nil
		}
		return nil, apperrors.Decode("data has no results, items or cart_items list")
	default:
		return nil, apperrors.Decode("data is neither a list nor an object")
	}
}

func isDecodeError(err error) bool {
	return errors.Is(err, apperrors.ErrDecode)
}
