package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/dudk/vidpipe"
	"github.com/dudk/vidpipe/log"
	"github.com/dudk/vidpipe/playbin"
	"github.com/dudk/vidpipe/player"
)

type playCommand struct {
	uri     string
	refresh time.Duration
	sync    bool
	in      io.Reader
	out     io.Writer
}

func (cmd *playCommand) Name() string {
	return "play"
}

func (cmd *playCommand) Help() string {
	return "Play media file, control playback from stdin"
}

func (cmd *playCommand) Register(fs *flag.FlagSet) {
	fs.StringVarP(&cmd.uri, "uri", "u", "", "URI or path of media to play (required)")
	fs.DurationVar(&cmd.refresh, "refresh", player.DefaultRefreshInterval, "Position refresh interval")
	fs.BoolVar(&cmd.sync, "sync", true, "Render on time")
}

func (cmd *playCommand) Run(ctx context.Context) error {
	if cmd.uri == "" {
		return errors.New("missing --uri required flag")
	}
	in, out := cmd.in, cmd.out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	logger := log.GetLogger()
	p, err := vidpipe.Build("player", []vidpipe.ElementSpec{{
		Factory:    playbin.Factory,
		Name:       "playbin",
		Properties: map[string]interface{}{"uri": cmd.uri, "sync": cmd.sync},
	}}, vidpipe.WithLogger(logger))
	if err != nil {
		logger.Error("Not all elements could be created.")
		return err
	}
	defer p.Close()

	slider := &textSlider{}
	pl := player.New(p,
		player.WithLogger(logger),
		player.WithSlider(slider),
		player.WithStreamsView(&textView{out: out}),
	)

	g, ctx := errgroup.WithContext(ctx)
	loopCtx, cancel := context.WithCancel(ctx)
	g.Go(func() error {
		return pl.Run(loopCtx, cmd.refresh)
	})
	g.Go(func() error {
		defer cancel()
		var err error
		if ierr := pl.Invoke(func() { err = pl.Play() }); ierr != nil {
			return ierr
		}
		if err != nil {
			return err
		}
		return control(loopCtx, in, out, pl, slider)
	})
	err = g.Wait()
	if cerr := pl.Close(); err == nil {
		err = cerr
	}
	return err
}

// control reads commands line by line and executes them on player loop.
func control(ctx context.Context, in io.Reader, out io.Writer, pl *player.Player, slider *textSlider) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	fmt.Fprintln(out, "Commands: play, pause, stop, seek SECONDS, status, quit")
	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
			if !ok {
				return nil
			}
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		var err error
		switch fields[0] {
		case "play":
			pl.Invoke(func() { err = pl.Play() })
		case "pause":
			pl.Invoke(func() { err = pl.Pause() })
		case "stop":
			pl.Invoke(func() { err = pl.Stop() })
		case "seek":
			if len(fields) != 2 {
				fmt.Fprintln(out, "Usage: seek SECONDS")
				continue
			}
			seconds, perr := strconv.ParseFloat(fields[1], 64)
			if perr != nil {
				fmt.Fprintf(out, "Bad position %q\n", fields[1])
				continue
			}
			pl.Invoke(func() { err = pl.SliderChanged(seconds) })
		case "status":
			pl.Invoke(func() {
				fmt.Fprintf(out, "%v %s\n", pl.State(), slider)
			})
		case "quit", "q":
			return nil
		default:
			fmt.Fprintf(out, "Unknown command %q\n", fields[0])
		}
		if err != nil {
			fmt.Fprintf(out, "%s failed: %v\n", fields[0], err)
		}
	}
}

// textSlider keeps slider position for status command.
type textSlider struct {
	max, value float64
}

func (s *textSlider) SetRange(min, max float64) {
	s.max = max
}

func (s *textSlider) SetValue(value float64) {
	s.value = value
}

func (s *textSlider) String() string {
	return fmt.Sprintf("%.1f / %.1f s", s.value, s.max)
}

// textView prints stream information.
type textView struct {
	out io.Writer
}

func (v *textView) SetText(text string) {
	fmt.Fprintln(v.out, text)
}
