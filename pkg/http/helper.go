package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"roombook/pkg/config"
	apperrors "roombook/pkg/errors"
	"strconv"
	"time"
)

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid limit parameter: " + s)
		}
		limit = v
	}

	var offset int64 = 0
	if s := query.Get("offset"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid offset parameter: " + s)
		}
		offset = v
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	return limit, offset, nil
}

// DecodeJSON reads a single JSON object from the request body into v.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperrors.PayloadTooLarge(int(maxErr.Limit))
		case errors.Is(err, io.EOF):
			return apperrors.InvalidInput("request body is empty")
		default:
			return apperrors.InvalidInput(fmt.Sprintf("invalid JSON body: %v", err))
		}
	}
	if dec.More() {
		return apperrors.InvalidInput("request body must contain a single JSON object")
	}
	return nil
}

// ExtractTimeWindow reads the optional from/to query parameters.
func ExtractTimeWindow(r *http.Request, parse func(string, *time.Location) (time.Time, error), loc *time.Location) (*time.Time, *time.Time, error) {
	query := r.URL.Query()
	var bounds [2]*time.Time

	for i, name := range []string{"from", "to"} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		t, err := parse(raw, loc)
		if err != nil {
			return nil, nil, apperrors.InvalidInput(fmt.Sprintf("invalid %s parameter: %s", name, raw))
		}
		bounds[i] = &t
	}

	if bounds[0] != nil && bounds[1] != nil && !bounds[0].Before(*bounds[1]) {
		return nil, nil, apperrors.InvalidInput("from must be before to")
	}
	return bounds[0], bounds[1], nil
}
