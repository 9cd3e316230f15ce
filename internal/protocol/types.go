package protocol

import "fmt"

// MsgType is the message type byte of a package header. Requests and
// responses share the numeric space; direction tells them apart.
type MsgType uint8

// Client requests.
const (
	ReqQuery MsgType = iota
	ReqInsert
	ReqAuth
	ReqPing
	ReqInfo
	ReqLoadDB
	ReqRegisterServer
	ReqFileServers
	ReqFileUsers
	ReqFileGroups
	ReqFileDatabase
)

// Successful responses.
const (
	ResQuery MsgType = iota
	ResInsert
	ResAuthSuccess
	ResAck
	ResInfo
	ResFile
)

// Service acknowledgements.
const (
	AckService MsgType = iota + 32
	AckServiceData
)

// Error responses. Every error response carries an error_msg map.
const (
	ErrMsg MsgType = iota + 64
	ErrQuery
	ErrInsert
	ErrServer
	ErrPool
	ErrUserAccess
	Err
	ErrNotAuthenticated
	ErrAuthCredentials
	ErrAuthUnknownDB
	ErrLoadingDB
	ErrFile
)

// Service errors.
const (
	ErrService MsgType = iota + 96
	ErrServiceInvalidRequest
)

var requestNames = map[MsgType]string{
	ReqQuery:          "req_query",
	ReqInsert:         "req_insert",
	ReqAuth:           "req_auth",
	ReqPing:           "req_ping",
	ReqInfo:           "req_info",
	ReqLoadDB:         "req_loaddb",
	ReqRegisterServer: "req_register_server",
	ReqFileServers:    "req_file_servers",
	ReqFileUsers:      "req_file_users",
	ReqFileGroups:     "req_file_groups",
	ReqFileDatabase:   "req_file_database",
}

var responseNames = map[MsgType]string{
	ResQuery:                 "res_query",
	ResInsert:                "res_insert",
	ResAuthSuccess:           "res_auth_success",
	ResAck:                   "res_ack",
	ResInfo:                  "res_info",
	ResFile:                  "res_file",
	AckService:               "ack_service",
	AckServiceData:           "ack_service_data",
	ErrMsg:                   "err_msg",
	ErrQuery:                 "err_query",
	ErrInsert:                "err_insert",
	ErrServer:                "err_server",
	ErrPool:                  "err_pool",
	ErrUserAccess:            "err_user_access",
	Err:                      "err",
	ErrNotAuthenticated:      "err_not_authenticated",
	ErrAuthCredentials:       "err_auth_credentials",
	ErrAuthUnknownDB:         "err_auth_unknown_db",
	ErrLoadingDB:             "err_loading_db",
	ErrFile:                  "err_file",
	ErrService:               "err_service",
	ErrServiceInvalidRequest: "err_service_invalid_request",
}

// RequestName names tp read as a client request.
func RequestName(tp MsgType) string {
	if name, ok := requestNames[tp]; ok {
		return name
	}
	return fmt.Sprintf("req(%d)", uint8(tp))
}

// String names tp read as a response, the direction packages are sent in.
func (tp MsgType) String() string {
	if name, ok := responseNames[tp]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint8(tp))
}

// IsError reports whether tp is an error response.
func (tp MsgType) IsError() bool {
	return (tp >= ErrMsg && tp <= ErrFile) || tp == ErrService || tp == ErrServiceInvalidRequest
}
