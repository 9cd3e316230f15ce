package protocol

import "net/http"

// HTTPStatus maps a response type to the status code used when the
// response goes to an HTTP client instead of a raw stream.
func HTTPStatus(tp MsgType) int {
	switch tp {
	case ResQuery, ResInsert, ResAuthSuccess, ResAck, ResFile, AckService, AckServiceData:
		return http.StatusOK

	case ErrQuery, ErrInsert, ErrService, ErrServiceInvalidRequest:
		return http.StatusBadRequest

	case ErrServer, ErrPool:
		return http.StatusServiceUnavailable

	case ErrUserAccess, ErrNotAuthenticated:
		return http.StatusForbidden

	case ErrAuthUnknownDB, ErrAuthCredentials:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}
