package api

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"drivingschool-console/internal/domain"
)

var errUnexpectedShape = domain.NewError(domain.KindServerError, 0, "unexpected response from server")

// decodeCollection accepts both envelopes seen on the backend: {"data": [...]} and a bare
// array. Paginated payloads nest one level deeper ({"data": {"data": [...]}}).
func decodeCollection(data []byte) ([]domain.Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errUnexpectedShape
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(errUnexpectedShape, err.Error())
	}

	for depth := 0; depth < 2; depth++ {
		obj, ok := raw.(map[string]any)
		if !ok {
			break
		}
		inner, ok := obj["data"]
		if !ok {
			return nil, errUnexpectedShape
		}
		raw = inner
	}

	items, ok := raw.([]any)
	if !ok {
		return nil, errUnexpectedShape
	}
	records := make([]domain.Record, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, errUnexpectedShape
		}
		records = append(records, domain.Record(obj))
	}
	return records, nil
}

type writeResult struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
}

// decodeWriteResult reads {success, message, errors}. Empty bodies (204) count as success.
func decodeWriteResult(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return "", nil
	}
	var res writeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return "", nil
	}
	if res.Success != nil && !*res.Success {
		fields, ok := normalizeFieldErrors(res.Errors)
		if !ok || fields == nil {
			return "", domain.NewError(domain.KindServerError, 0, res.Message)
		}
		err := domain.NewError(domain.KindValidationFailed, 0, res.Message)
		err.Fields = fields
		return "", err
	}
	return res.Message, nil
}

type failureBody struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Errors  json.RawMessage `json:"errors"`
}

func decodeFailure(kind domain.ErrorKind, status int, data []byte) error {
	var body failureBody
	_ = json.Unmarshal(bytes.TrimSpace(data), &body)
	message := body.Message
	if message == "" {
		message = body.Error
	}

	if kind != domain.KindValidationFailed && kind != domain.KindConflict {
		return domain.NewError(kind, status, message)
	}

	fields, ok := normalizeFieldErrors(body.Errors)
	switch {
	case !ok:
		return domain.NewError(domain.KindServerError, status, message)
	case fields == nil && kind == domain.KindValidationFailed:
		// 422 with no field map gives the form nothing to highlight.
		return domain.NewError(domain.KindServerError, status, message)
	}
	err := domain.NewError(kind, status, message)
	err.Fields = fields
	return err
}

// normalizeFieldErrors turns {"field": "msg"} and {"field": ["msg", ...]} into one shape.
// It reports false for anything else.
func normalizeFieldErrors(raw json.RawMessage) (map[string][]string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, true
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	fields := make(map[string][]string, len(obj))
	for name, value := range obj {
		var one string
		if err := json.Unmarshal(value, &one); err == nil {
			fields[name] = []string{one}
			continue
		}
		var many []string
		if err := json.Unmarshal(value, &many); err == nil && len(many) > 0 {
			fields[name] = many
			continue
		}
		return nil, false
	}
	if len(fields) == 0 {
		return nil, true
	}
	return fields, true
}
