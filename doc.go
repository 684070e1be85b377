/*
Package vidpipe allows to build and control media pipelines.

# Concept

A pipeline is a chain of elements. Every element has one of three roles:

	Source - produces buffers, for example udpsrc receives datagrams;
	Transform - converts buffers, for example rtph264depay;
	Sink - consumes buffers, for example xvimagesink renders frames;

The first element must be a Source and the last one must be a Sink. A
single element which is both Source and Sink forms a complete pipeline,
this is how playbin works.

Elements are created by factories registered in the package registry:

	e, err := vidpipe.Make("udpsrc", "src")

Element packages register their factories in init, so it's enough to
import them for side effects.

# Building

Pipeline can be built from element specs or from launch description:

	p, err := vidpipe.BuildLaunch("receiver",
	    "udpsrc port=5004 caps=\"application/x-rtp, encoding-name=H264\" ! "+
	        "rtph264depay ! avdec_h264 ! autovideosink")

Build creates every element, adds it to the pipeline, links the chain and
then sets element properties. Caps of neighbours are checked when linking,
once more after properties are set and again before elements are opened,
so build fails if configured caps cannot intersect.

# States

Pipeline has four states ordered as NULL < READY < PAUSED < PLAYING.
SetState walks through every intermediate state and posts a state-changed
message for each step:

	err := vidpipe.Wait(p.SetState(vidpipe.Playing))

Elements are opened in READY, streaming goroutines are started in PAUSED
and data flows only in PLAYING.

# Bus

Elements and pipeline report errors, end-of-stream and state changes to
the bus. Listen blocks until an error or end-of-stream is received or the
context is done:

	msg, err := vidpipe.Listen(ctx, p.Bus())
*/
package vidpipe
