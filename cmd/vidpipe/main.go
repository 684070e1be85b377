package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	_ "github.com/dudk/vidpipe/h264"
	_ "github.com/dudk/vidpipe/playbin"
	_ "github.com/dudk/vidpipe/rtp"
	_ "github.com/dudk/vidpipe/sink"
	_ "github.com/dudk/vidpipe/udp"
	_ "github.com/dudk/vidpipe/video"
)

type command interface {
	Name() string
	Help() string
	Register(*flag.FlagSet)
	Run(ctx context.Context) error
}

var (
	successExitCode = 0
	errorExitCode   = 1
	commands        = []command{
		&receiveCommand{},
		&playCommand{},
		&listCommand{out: os.Stdout},
	}
)

type runner struct {
	args []string
	out  io.Writer
}

func (r *runner) run(ctx context.Context) int {
	cmdName, args := parseArgs(r.args)
	if cmdName == "" || cmdName == "help" || cmdName == "-h" || cmdName == "--help" {
		r.printUsage()
		if cmdName == "" {
			return errorExitCode
		}
		return successExitCode
	}

	for _, cmd := range commands {
		if cmd.Name() != cmdName {
			continue
		}
		flags := flag.NewFlagSet(cmdName, flag.ContinueOnError)
		cmd.Register(flags)
		if err := flags.Parse(args); err != nil {
			if err == flag.ErrHelp {
				return successExitCode
			}
			return errorExitCode
		}
		if err := cmd.Run(ctx); err != nil {
			color.New(color.FgRed).Fprintf(r.out, "Command failed: %v\n", err)
			return errorExitCode
		}
		return successExitCode
	}
	color.New(color.FgRed).Fprintf(r.out, "Unknown command: %s\n\n", cmdName)
	r.printUsage()
	return errorExitCode
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	r := runner{
		args: os.Args,
		out:  os.Stderr,
	}
	code := r.run(ctx)
	stop()
	os.Exit(code)
}

func parseArgs(args []string) (string, []string) {
	if len(args) < 2 {
		return "", nil
	}
	return args[1], args[2:]
}

func (r *runner) printUsage() {
	title := color.New(color.FgCyan, color.Bold)
	name := color.New(color.FgYellow)
	title.Fprintln(r.out, "vidpipe is a media pipeline runner")
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Usage: vidpipe <command> [OPTION]...")
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Commands:")
	for _, cmd := range commands {
		name.Fprintf(r.out, "  %-10s", cmd.Name())
		fmt.Fprintf(r.out, "%s\n", cmd.Help())
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Run 'vidpipe <command> --help' for command options.")
}
