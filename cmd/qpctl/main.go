package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/qpnet/internal/api"
	"github.com/danmuck/qpnet/internal/logging"
	"github.com/danmuck/qpnet/internal/protocol"
	"github.com/danmuck/qpnet/internal/protocol/frame"
	"github.com/danmuck/qpnet/internal/protocol/session"
	"github.com/danmuck/qpnet/internal/qpack"
	"github.com/spf13/pflag"
)

type options struct {
	addr     string
	user     string
	password string
	db       string
	cfg      session.Config
}

func main() {
	logging.ConfigureRuntime()
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "qpctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts := options{cfg: session.DefaultConfig()}
	flags := pflag.NewFlagSet("qpctl", pflag.ContinueOnError)
	flags.StringVarP(&opts.addr, "addr", "a", "localhost:9000", "server address")
	flags.StringVarP(&opts.user, "user", "u", "", "user name for auth and insert")
	flags.StringVarP(&opts.password, "password", "p", os.Getenv("QPNET_PASSWORD"), "password (defaults to $QPNET_PASSWORD)")
	flags.StringVarP(&opts.db, "db", "d", "", "database name")
	flags.DurationVar(&opts.cfg.RequestTimeout, "timeout", opts.cfg.RequestTimeout, "request timeout")
	flags.BoolVar(&opts.cfg.TLS.Enabled, "tls", false, "use TLS")
	flags.StringVar(&opts.cfg.TLS.CAFile, "ca", "", "CA bundle for the server certificate")
	flags.StringVar(&opts.cfg.TLS.CertFile, "cert", "", "client certificate for mutual TLS")
	flags.StringVar(&opts.cfg.TLS.KeyFile, "key", "", "client key for mutual TLS")
	flags.StringVar(&opts.cfg.TLS.ServerName, "server-name", "", "expected server name")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: qpctl [flags] ping|info|auth|insert <file>|query <query>\n\n%s", flags.FlagUsages())
	}
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	opts.cfg.TLS.Mutual = opts.cfg.TLS.CertFile != ""
	if flags.NArg() == 0 {
		flags.Usage()
		return fmt.Errorf("missing command")
	}
	cmd, rest := flags.Arg(0), flags.Args()[1:]

	c, err := session.Dial(ctx, opts.addr, opts.cfg)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.addr, err)
	}
	defer c.Close()

	switch cmd {
	case "ping":
		return call(ctx, c, out, protocol.ReqPing, nil)
	case "info":
		return call(ctx, c, out, protocol.ReqInfo, nil)
	case "auth":
		return authenticate(ctx, c, out, opts)
	case "insert":
		if len(rest) != 1 {
			return fmt.Errorf("insert takes one file")
		}
		v, err := readInsert(rest[0])
		if err != nil {
			return err
		}
		if err := authenticate(ctx, c, io.Discard, opts); err != nil {
			return err
		}
		return call(ctx, c, out, protocol.ReqInsert, v)
	case "query":
		if len(rest) == 0 {
			return fmt.Errorf("query takes a query string")
		}
		if err := authenticate(ctx, c, io.Discard, opts); err != nil {
			return err
		}
		return call(ctx, c, out, protocol.ReqQuery, []any{strings.Join(rest, " ")})
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func authenticate(ctx context.Context, c *session.Client, out io.Writer, opts options) error {
	if opts.user == "" || opts.db == "" {
		return fmt.Errorf("--user and --db are required")
	}
	return call(ctx, c, out, protocol.ReqAuth, []any{opts.user, opts.password, opts.db})
}

// call sends one request and prints the response. Error responses are
// returned as errors.
func call(ctx context.Context, c *session.Client, out io.Writer, tp protocol.MsgType, v any) error {
	var p *qpack.Packer
	if v != nil {
		p = frame.NewPacker(0)
		if err := p.Add(v); err != nil {
			return err
		}
	}
	resp, err := c.Request(ctx, tp, p)
	if err != nil {
		return err
	}
	body := qpack.Sprint(resp.Data())
	if resp.Type.IsError() {
		return fmt.Errorf("%s: %s", resp.Type, body)
	}
	if body == "" {
		_, err = fmt.Fprintln(out, resp.Type)
	} else {
		_, err = fmt.Fprintf(out, "%s %s\n", resp.Type, body)
	}
	return err
}

// readInsert loads insert data from a JSON file or a qpack file.
func readInsert(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return api.DecodeJSON(data)
	}
	return qpack.Unmarshal(data)
}
