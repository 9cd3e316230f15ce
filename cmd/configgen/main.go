package main

import (
	"fmt"
	"os"

	"github.com/danmuck/qpnet/internal/config"
	"github.com/spf13/pflag"
)

const defaultPath = "cmd/qpackd/config.toml"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("configgen", pflag.ContinueOnError)
	kind := flags.String("kind", "server", "config kind: server")
	output := flags.StringP("output", "o", defaultPath, "output path for config template")
	validate := flags.Bool("validate", false, "validate an existing config file")
	input := flags.StringP("input", "i", defaultPath, "config path for validation")
	force := flags.Bool("force", false, "overwrite existing config file")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if *validate {
		if _, err := config.LoadServerConfig(*input); err != nil {
			return err
		}
		fmt.Printf("Validated %s config at %s\n", *kind, *input)
		return nil
	}

	if err := config.WriteTemplate(*output, *kind, *force); err != nil {
		return err
	}
	fmt.Printf("Wrote %s config template to %s\n", *kind, *output)
	return nil
}
