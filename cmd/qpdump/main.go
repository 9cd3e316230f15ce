package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "qpdump: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("qpdump", pflag.ContinueOnError)
	format := flags.StringP("format", "f", "text", "output format: text|json|yaml|cbor")
	framed := flags.Bool("frames", false, "input is a stream of framed packages")
	maxPayload := flags.Uint32("max-payload", 0, "payload size limit for --frames (0 uses the default)")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: qpdump [flags] <file>...\n\n%s", flags.FlagUsages())
	}
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return fmt.Errorf("no input file")
	}
	enc, err := newEncoder(*format)
	if err != nil {
		return err
	}

	for _, path := range flags.Args() {
		if *framed {
			err = dumpFrames(out, enc, path, *maxPayload)
		} else {
			err = dumpFile(out, enc, path)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
