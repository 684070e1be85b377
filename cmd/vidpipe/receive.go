package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/dudk/vidpipe"
	"github.com/dudk/vidpipe/config"
	"github.com/dudk/vidpipe/log"
	"github.com/dudk/vidpipe/metric"
)

type receiveCommand struct {
	flags       *flag.FlagSet
	receiver    config.Receiver
	launch      string
	config      string
	metricsAddr string
}

func (cmd *receiveCommand) Name() string {
	return "receive"
}

func (cmd *receiveCommand) Help() string {
	return "Receive RTP/H.264 stream over UDP and render it"
}

func (cmd *receiveCommand) Register(fs *flag.FlagSet) {
	d := config.DefaultReceiver()
	cmd.flags = fs
	fs.IntVarP(&cmd.receiver.Port, "port", "p", d.Port, "UDP port to receive packets on")
	fs.StringVar(&cmd.receiver.Caps, "caps", d.Caps, "Caps of received packets")
	fs.StringVar(&cmd.receiver.Sink, "sink", d.Sink, "Video sink factory")
	fs.BoolVar(&cmd.receiver.Sync, "sync", d.Sync, "Render frames on time")
	fs.StringVarP(&cmd.receiver.Output, "output", "o", "", "Write access units into file instead of rendering")
	fs.StringVar(&cmd.launch, "launch", "", "Pipeline description in launch syntax")
	fs.StringVarP(&cmd.config, "config", "c", "", "YAML file with pipeline description")
	fs.StringVar(&cmd.metricsAddr, "metrics-addr", "", "Address to serve prometheus metrics on")
}

// description returns pipeline description. Launch line and config file
// take precedence over receiver flags, flags override environment.
func (cmd *receiveCommand) description() (config.Pipeline, error) {
	switch {
	case cmd.launch != "":
		return config.Pipeline{Name: "receiver", Launch: cmd.launch}, nil
	case cmd.config != "":
		return config.Load(cmd.config)
	}
	r, err := config.ReceiverFromEnv(os.LookupEnv)
	if err != nil {
		return config.Pipeline{}, err
	}
	if cmd.flags == nil {
		return cmd.receiver.Pipeline(), nil
	}
	if cmd.flags.Changed("port") {
		r.Port = cmd.receiver.Port
	}
	if cmd.flags.Changed("caps") {
		r.Caps = cmd.receiver.Caps
	}
	if cmd.flags.Changed("sink") {
		r.Sink = cmd.receiver.Sink
	}
	if cmd.flags.Changed("sync") {
		r.Sync = cmd.receiver.Sync
	}
	r.Output = cmd.receiver.Output
	return r.Pipeline(), nil
}

func (cmd *receiveCommand) Run(ctx context.Context) error {
	logger := log.GetLogger()
	c, err := cmd.description()
	if err != nil {
		return err
	}
	p, err := c.Build(vidpipe.WithLogger(logger))
	if err != nil {
		if errors.Is(err, vidpipe.ErrLink) {
			logger.Error("Elements could not be linked.")
		} else {
			logger.Error("Not all elements could be created.")
		}
		return err
	}
	defer p.Close()

	g, ctx := errgroup.WithContext(ctx)
	if cmd.metricsAddr != "" {
		serveMetrics(ctx, g, cmd.metricsAddr, logger)
	}
	g.Go(func() error {
		return receive(ctx, p, logger)
	})
	if err := g.Wait(); err != errStop {
		return err
	}
	return p.Close()
}

// receive plays pipeline until error, end-of-stream or interruption.
func receive(ctx context.Context, p *vidpipe.Pipeline, logger logrus.FieldLogger) error {
	if err := vidpipe.Wait(p.SetState(vidpipe.Playing)); err != nil {
		logger.Error("Unable to set the pipeline to the playing state.")
		return err
	}
	m, err := vidpipe.Listen(ctx, p.Bus(), vidpipe.ListenLogger(logger))
	if serr := vidpipe.Wait(p.Stop()); serr != nil {
		logger.Warnf("Unable to stop the pipeline: %v", serr)
	}
	if err != nil {
		return errStop
	}
	if m.Type() == vidpipe.MessageError {
		return errors.Wrapf(m.Err(), "element %s", m.Source())
	}
	return errStop
}

// errStop cancels group when pipeline is done. It's not reported.
var errStop = errors.New("stop")

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, logger logrus.FieldLogger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metric.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Infof("Serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "serve metrics")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	})
}
