package apperror

import "net/http"

// Response is the client-visible form of a failure.
type Response struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes are part of the public contract; never renumber.
var table = map[Kind]Response{
	KindDefault:         {Status: http.StatusBadRequest, Code: 1000, Message: "The request could not be processed."},
	KindSyntax:          {Status: http.StatusBadRequest, Code: 1001, Message: "Malformed request body."},
	KindTokenPermission: {Status: http.StatusUnauthorized, Code: 1002, Message: "Insufficient permissions."},
	KindTokenExpired:    {Status: http.StatusUnauthorized, Code: 1003, Message: "Token expired."},
	KindJSONWebToken:    {Status: http.StatusUnauthorized, Code: 1004, Message: "Invalid token."},
	KindInvalidPayload:  {Status: http.StatusBadRequest, Code: 1005, Message: "Payload failed validation."},
	KindNoDataAvailable: {Status: http.StatusNotFound, Code: 1006, Message: "No data available."},
	KindNothingToRemove: {Status: http.StatusConflict, Code: 1007, Message: "Nothing to remove."},
	KindStore:           {Status: http.StatusInternalServerError, Code: 1008, Message: "Internal error."},
	KindEncoding:        {Status: http.StatusInternalServerError, Code: 1008, Message: "Internal error."},
}

// Translate maps a kind to its boundary triple. Unknown kinds fall back to
// the default entry.
func Translate(kind Kind) Response {
	if resp, ok := table[kind]; ok {
		return resp
	}
	return table[KindDefault]
}

// TranslateError resolves the kind of any error and translates it.
func TranslateError(err error) Response {
	return Translate(KindOf(err))
}
