// Package main is the entry point for the transcoder worker.
//
// transcoder is the openstream video-on-demand transcoding worker. It consumes
// transcode and clip jobs from Kafka, produces adaptive-bitrate HLS renditions,
// sprite timelines, and clips into the object store, and reports progress back
// to the platform as events.
package main

import (
	"os"

	"github.com/openstream/transcoder/cmd/transcoder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
