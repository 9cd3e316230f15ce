package auth

import (
	"errors"
	"testing"

	"github.com/danmuck/qpnet/internal/protocol"
	"github.com/danmuck/qpnet/internal/qpack"
	"github.com/danmuck/qpnet/internal/testutil/testlog"
)

func authPayload(t *testing.T, items ...any) []byte {
	t.Helper()
	data, err := qpack.Marshal(items)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestStaticCredentialsAuthenticate(t *testing.T) {
	testlog.Start(t)
	creds := NewStaticCredentials(
		[]User{{Name: "iris", Password: "siri"}, {Name: "nopass"}},
		[]string{"dbtest"},
	)
	tests := []struct {
		name                   string
		user, password, dbname string
		want                   protocol.MsgType
	}{
		{name: "valid credentials", user: "iris", password: "siri", dbname: "dbtest", want: protocol.ResAuthSuccess},
		{name: "unknown database", user: "iris", password: "siri", dbname: "other", want: protocol.ErrAuthUnknownDB},
		{name: "wrong password", user: "iris", password: "nope", dbname: "dbtest", want: protocol.ErrAuthCredentials},
		{name: "unknown user", user: "bob", password: "siri", dbname: "dbtest", want: protocol.ErrAuthCredentials},
		{name: "empty stored password denied", user: "nopass", password: "", dbname: "dbtest", want: protocol.ErrAuthCredentials},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Request(creds, authPayload(t, tc.user, tc.password, tc.dbname))
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if res.Type != tc.want {
				t.Fatalf("got=%s want=%s", res.Type, tc.want)
			}
			if res.User != tc.user || res.Database != tc.dbname {
				t.Fatalf("result names got=%+v", res)
			}
		})
	}
}

func TestAuthenticateComparesRawBytes(t *testing.T) {
	testlog.Start(t)
	creds := NewStaticCredentials([]User{{Name: "iris", Password: "siri"}}, []string{"dbtest"})
	tests := []struct {
		name string
		add  func(p *qpack.Packer)
		want protocol.MsgType
	}{
		{
			name: "trailing nul in password",
			add: func(p *qpack.Packer) {
				p.AddString("iris")
				p.AddRaw([]byte("siri\x00"))
				p.AddString("dbtest")
			},
			want: protocol.ErrAuthCredentials,
		},
		{
			name: "terminated password",
			add: func(p *qpack.Packer) {
				p.AddString("iris")
				p.AddStringTerm("siri")
				p.AddString("dbtest")
			},
			want: protocol.ErrAuthCredentials,
		},
		{
			name: "terminated database",
			add: func(p *qpack.Packer) {
				p.AddString("iris")
				p.AddString("siri")
				p.AddStringTerm("dbtest")
			},
			want: protocol.ErrAuthUnknownDB,
		},
		{
			name: "exact bytes",
			add: func(p *qpack.Packer) {
				p.AddString("iris")
				p.AddString("siri")
				p.AddString("dbtest")
			},
			want: protocol.ResAuthSuccess,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := qpack.NewPacker(0)
			if err := p.AddArray(3); err != nil {
				t.Fatal(err)
			}
			tc.add(p)
			res, err := Request(creds, p.Bytes())
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if res.Type != tc.want {
				t.Fatalf("got=%s want=%s", res.Type, tc.want)
			}
		})
	}
}

func TestRequestMalformed(t *testing.T) {
	testlog.Start(t)
	creds := NewStaticCredentials(nil, nil)
	payloads := [][]byte{
		nil,
		authPayload(t, "iris", "siri"),
		authPayload(t, "iris", int64(1), "dbtest"),
		{0xe8},
	}
	for _, payload := range payloads {
		if _, err := Request(creds, payload); !errors.Is(err, ErrMalformedRequest) {
			t.Fatalf("payload %v: expected ErrMalformedRequest, got %v", payload, err)
		}
	}
}

func TestAuthenticatorFunc(t *testing.T) {
	testlog.Start(t)
	var seen string
	authn := AuthenticatorFunc(func(user, _, _ *qpack.Object) protocol.MsgType {
		seen = user.Str()
		return protocol.ErrUserAccess
	})
	res, err := Request(authn, authPayload(t, "iris", "siri", "dbtest"))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if seen != "iris" || res.Type != protocol.ErrUserAccess {
		t.Fatalf("seen=%q result=%s", seen, res.Type)
	}
	if Message(res.Type) != "access denied" {
		t.Fatalf("message got=%q", Message(res.Type))
	}
}
