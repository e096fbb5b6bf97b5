package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/javanhut/blobtransfer/internal/collection"
	"github.com/javanhut/blobtransfer/internal/colors"
	"github.com/javanhut/blobtransfer/internal/config"
	"github.com/javanhut/blobtransfer/internal/keystore"
	"github.com/javanhut/blobtransfer/internal/provider"
	"github.com/javanhut/blobtransfer/internal/ticket"
	"github.com/javanhut/blobtransfer/internal/transport"
	"github.com/javanhut/blobtransfer/internal/workerpool"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve [files...]",
	Short: "Serve one or more files as a content-addressed collection",
	Long:  "Builds a collection manifest from the given files, starts a provider, and prints a ticket getters can use to fetch it.",
	Args:  cobra.MinimumNArgs(1),
	Run:   serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: config provider.listen_addr)")
}

func serveCommand(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	addr := serveAddr
	if addr == "" {
		addr = cfg.Provider.ListenAddr
	}

	kp, token, err := keystore.LoadOrGenerate(cfg.Provider.KeystorePath)
	if err != nil {
		log.Fatalf("load identity: %v", err)
	}

	sources := make([]collection.Source, 0, len(args))
	for _, path := range args {
		sources = append(sources, collection.FromPath(path))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := workerpool.New(cfg.Provider.Workers)
	defer pool.Close()

	db, rootHash, err := collection.Build(ctx, pool, sources, "")
	if err != nil {
		log.Fatalf("build collection: %v", err)
	}

	listener, err := transport.PipeListen(addr, kp.PeerId())
	if err != nil {
		log.Fatalf("listen on %s: %v", addr, err)
	}
	defer listener.Close()

	p := provider.New(db, kp, token, provider.Options{
		MaxConnections: cfg.Provider.MaxConnections,
		MaxStreams:     cfg.Provider.MaxStreams,
		EventBacklog:   cfg.Provider.EventBacklog,
		Workers:        cfg.Provider.Workers,
	})
	defer p.Close()

	t := ticket.Ticket{Hash: rootHash, PeerId: kp.PeerId(), Address: addr, Token: token}
	fmt.Println(colors.SectionHeader("Serving"), len(sources), "file(s) at", colors.InfoText(addr))
	fmt.Println(colors.SectionHeader("Ticket:"), ticket.Encode(t))

	if err := p.Serve(ctx, listener); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
