// Package auth checks connection credentials against configured users
// and databases.
//
// It intentionally avoids storage concerns; the outcome is a response
// message type, not a policy object.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/danmuck/qpnet/internal/protocol"
	"github.com/danmuck/qpnet/internal/protocol/schema"
	"github.com/danmuck/qpnet/internal/qpack"
	"github.com/rs/zerolog/log"
)

var ErrMalformedRequest = errors.New("auth: malformed auth request")

// Authenticator decides an auth request. The result is ResAuthSuccess
// or the error response type to send back.
type Authenticator interface {
	Authenticate(user, password, db *qpack.Object) protocol.MsgType
}

// AuthenticatorFunc adapts a function into an Authenticator.
type AuthenticatorFunc func(user, password, db *qpack.Object) protocol.MsgType

func (f AuthenticatorFunc) Authenticate(user, password, db *qpack.Object) protocol.MsgType {
	return f(user, password, db)
}

type User struct {
	Name     string `toml:"name"`
	Password string `toml:"password"`
}

// StaticCredentials authenticates against a fixed user list and database
// set. It is intended for single-node deployments and tests.
type StaticCredentials struct {
	users     map[string]string
	databases map[string]struct{}
}

func NewStaticCredentials(users []User, databases []string) *StaticCredentials {
	s := &StaticCredentials{
		users:     make(map[string]string, len(users)),
		databases: make(map[string]struct{}, len(databases)),
	}
	for _, u := range users {
		s.users[u.Name] = u.Password
	}
	for _, db := range databases {
		s.databases[db] = struct{}{}
	}
	return s
}

// Authenticate checks the database first, then the credentials.
func (s *StaticCredentials) Authenticate(user, password, db *qpack.Object) protocol.MsgType {
	if _, ok := s.databases[string(db.Raw())]; !ok {
		return protocol.ErrAuthUnknownDB
	}
	// Raw bytes, so a trailing NUL is part of the value.
	stored, ok := s.users[string(user.Raw())]
	if !ok || stored == "" || subtle.ConstantTimeCompare([]byte(stored), password.Raw()) != 1 {
		return protocol.ErrAuthCredentials
	}
	return protocol.ResAuthSuccess
}

// Result is the outcome of one auth request.
type Result struct {
	Type     protocol.MsgType
	User     string
	Database string
}

func (r Result) OK() bool {
	return r.Type == protocol.ResAuthSuccess
}

// Request decodes a [user, password, database] payload and runs it
// through authn.
func Request(authn Authenticator, payload []byte) (Result, error) {
	if err := schema.Validate(protocol.ReqAuth, payload); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	u := qpack.NewUnpacker(payload)
	u.Next()
	var items [3]qpack.Object
	for i := range items {
		obj, k := u.CopyNext()
		if k != qpack.KindRaw {
			return Result{}, fmt.Errorf("%w: item %d is %s", ErrMalformedRequest, i+1, k)
		}
		items[i] = obj
	}
	tp := authn.Authenticate(&items[0], &items[1], &items[2])
	res := Result{Type: tp, User: items[0].Str(), Database: items[2].Str()}
	if res.OK() {
		log.Info().Str("user", res.User).Str("db", res.Database).Msg("auth.Request accepted")
	} else {
		log.Warn().Str("user", res.User).Str("db", res.Database).Str("result", tp.String()).Msg("auth.Request rejected")
	}
	return res, nil
}

// Message is the human readable reason sent with a rejected result.
func Message(tp protocol.MsgType) string {
	switch tp {
	case protocol.ErrAuthUnknownDB:
		return "unknown database"
	case protocol.ErrAuthCredentials:
		return "invalid username or password"
	case protocol.ErrUserAccess:
		return "access denied"
	}
	return "authentication failed"
}
