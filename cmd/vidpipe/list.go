package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/dudk/vidpipe"
)

type listCommand struct {
	out io.Writer
}

func (cmd *listCommand) Name() string {
	return "list"
}

func (cmd *listCommand) Help() string {
	return "Show available elements and their properties"
}

func (cmd *listCommand) Register(fs *flag.FlagSet) {}

func (cmd *listCommand) Run(context.Context) error {
	factory := color.New(color.FgGreen)
	for _, name := range vidpipe.Factories() {
		specs, err := vidpipe.Describe(name)
		if err != nil {
			return err
		}
		factory.Fprintln(cmd.out, name)
		for _, spec := range specs {
			fmt.Fprintf(cmd.out, "  %-20s %-7v %s (default: %v)\n", spec.Name, spec.Kind, spec.Blurb, spec.Default)
		}
	}
	return nil
}
