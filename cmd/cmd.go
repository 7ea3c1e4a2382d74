// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd wires the client components and runs a download to
// completion.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/grishavanika/bittorrent-client/core"
	"github.com/grishavanika/bittorrent-client/lib/torrent/scheduler"
	"github.com/grishavanika/bittorrent-client/lib/torrent/storage"
	"github.com/grishavanika/bittorrent-client/metrics"
	"github.com/grishavanika/bittorrent-client/tracker/announceclient"
	"github.com/grishavanika/bittorrent-client/utils/configutil"
	"github.com/grishavanika/bittorrent-client/utils/log"
	"github.com/grishavanika/bittorrent-client/utils/memsize"
)

// Flags defines client CLI flags.
type Flags struct {
	TorrentPath string
	ConfigFile  string
	OutputDir   string
	PeerPort    int
}

// ParseFlags parses client CLI flags. The single positional argument is
// the path to the .torrent file.
func ParseFlags() *Flags {
	var flags Flags
	flag.StringVar(
		&flags.ConfigFile, "config", "", "configuration file path")
	flag.StringVar(
		&flags.OutputDir, "output-dir", ".", "directory to place downloaded files in")
	flag.IntVar(
		&flags.PeerPort, "peer-port", 6881, "port reported to trackers")
	flag.Parse()
	flags.TorrentPath = flag.Arg(0)
	return &flags
}

// progressEvents logs download progress.
type progressEvents struct {
	mi *core.MetaInfo
}

// PieceCompleted logs a completed piece.
func (e *progressEvents) PieceCompleted(index int, size int64) {
	log.Infof("Completed piece %d / %d (%s)",
		index+1, e.mi.NumPieces(), memsize.Format(uint64(size)))
}

// PeersReceived logs the size of a tracker handout.
func (e *progressEvents) PeersReceived(peers []*core.PeerInfo) {
	log.Infof("Tracker round handed out %d peers", len(peers))
}

// Run runs the client until the download completes or fails. Exits
// non-zero with a single error line on terminal failure.
func Run(flags *Flags) {
	if flags.TorrentPath == "" {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <torrent file>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	var config Config
	if flags.ConfigFile != "" {
		if err := configutil.Load(flags.ConfigFile, &config); err != nil {
			log.Fatalf("Error loading config file: %s", err)
		}
	}
	config = config.applyDefaults()

	zlog := log.ConfigureLogger(config.ZapLogging)
	defer zlog.Sync()

	stats, closer, err := metrics.New(config.Metrics, "")
	if err != nil {
		log.Fatalf("Failed to init metrics: %s", err)
	}
	defer closer.Close()

	go metrics.EmitVersion(stats)

	pctx, err := core.NewPeerContext(config.PeerIDFactory, flags.PeerPort)
	if err != nil {
		log.Fatalf("Failed to create peer context: %s", err)
	}

	mi, err := core.ParseMetaInfoFile(flags.TorrentPath)
	if err != nil {
		log.Fatalf("Failed to load torrent file: %s", err)
	}
	log.Infof("Loaded torrent %s: %s over %d pieces, hash %s",
		mi.Name(), memsize.Format(uint64(mi.Length())), mi.NumPieces(), mi.InfoHash())

	announcer, err := announceclient.NewGroup(
		mi, config.Tracker, config.TLS.BuildClient(), zlog)
	if err != nil {
		log.Fatalf("Error building tracker clients: %s", err)
	}

	writer, err := storage.NewWriter(config.Storage, mi, flags.OutputDir)
	if err != nil {
		log.Fatalf("Error creating output writer: %s", err)
	}

	sched, err := scheduler.New(
		config.Scheduler, stats, pctx, mi, writer, announcer, zlog,
		scheduler.WithEvents(&progressEvents{mi}))
	if err != nil {
		log.Fatalf("Error creating scheduler: %s", err)
	}

	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sched.Download(ctx); err != nil {
		log.Fatalf("Download failed: %s", err)
	}
	log.Infof("Download complete: %d pieces written under %s",
		mi.NumPieces(), flags.OutputDir)
}
