package list

import (
	"net/http"
	"regexp"

	"listbind/internal/infrastructure/remote"
	"listbind/internal/metadata"
)

// Service error codes of rejected lookup expansions.
const (
	codeProjectedField = "-2146232832, Microsoft.SharePoint.SPException"
	codeInvalidQuery   = "-1, Microsoft.SharePoint.SPException"
)

var (
	// 500: the expanded column has no value in some row.
	projectedFieldError = regexp.MustCompile(`^Cannot get value for projected field ([A-Za-z0-9_]+)_x005f_([A-Za-z0-9_]+)\.$`)
	// 400: the column cannot be expanded with this shape.
	invalidQueryError = regexp.MustCompile(`^The query to field '([A-Za-z0-9_]+)/([A-Za-z0-9_]+)' is not valid\.$`)
)

// ExpandFailure is a rejected query caused by expanding a lookup column.
type ExpandFailure struct {
	// Field is the lookup column.
	Field string
	// Column is the rejected select column (Field/Sub).
	Column string
	Status int
}

// ClassifyExpandFailure recognises rejected lookup expansions:
//
//	500 "Cannot get value for projected field X_x005f_Y."
//	400 "The query to field 'X/Y' is not valid."
//	404 without error body: the taxonomy catch-all expansion
//
// Any other error is not recoverable by changing the projection.
func ClassifyExpandFailure(err error) (ExpandFailure, bool) {
	re, ok := remote.AsError(err)
	if !ok {
		return ExpandFailure{}, false
	}
	switch re.Status {
	case http.StatusNotFound:
		if _, perr := remote.ParseODataError(re.Body); perr != nil {
			return ExpandFailure{
				Field:  metadata.TaxCatchAllField,
				Column: metadata.TaxCatchAllField + "/Title",
				Status: re.Status,
			}, true
		}
	case http.StatusBadRequest:
		return match(re, codeInvalidQuery, invalidQueryError)
	case http.StatusInternalServerError:
		return match(re, codeProjectedField, projectedFieldError)
	}
	return ExpandFailure{}, false
}

func match(re *remote.Error, code string, pattern *regexp.Regexp) (ExpandFailure, bool) {
	odata, err := remote.ParseODataError(re.Body)
	if err != nil || odata.Code != code {
		return ExpandFailure{}, false
	}
	m := pattern.FindStringSubmatch(odata.Message)
	if m == nil {
		return ExpandFailure{}, false
	}
	return ExpandFailure{Field: m[1], Column: m[1] + "/" + m[2], Status: re.Status}, true
}
