package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/javanhut/blobtransfer/internal/colors"
	"github.com/javanhut/blobtransfer/internal/config"
	"github.com/javanhut/blobtransfer/internal/getter"
	"github.com/javanhut/blobtransfer/internal/identity"
	"github.com/javanhut/blobtransfer/internal/ticket"
	"github.com/javanhut/blobtransfer/internal/transport"
)

var fetchOutDir string

var fetchCmd = &cobra.Command{
	Use:   "fetch <ticket>",
	Short: "Fetch the collection or blob addressed by a ticket",
	Args:  cobra.ExactArgs(1),
	Run:   fetchCommand,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchOutDir, "out", ".", "Directory to write fetched files into")
}

func fetchCommand(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	t, err := ticket.Decode(args[0])
	if err != nil {
		log.Fatalf("decode ticket: %v", err)
	}

	self, err := identity.Generate()
	if err != nil {
		log.Fatalf("generate ephemeral identity: %v", err)
	}

	if err := os.MkdirAll(fetchOutDir, 0755); err != nil {
		log.Fatalf("create output directory: %v", err)
	}

	ctx := context.Background()
	dialer := transport.PipeDialer{Self: self.PeerId()}
	events := getter.Run(ctx, dialer, t.Address, t.PeerId, t.Hash, t.Token, getter.Options{SizeLimit: cfg.Getter.SizeLimit})

	singleName := t.Hash.String()[:16]

	for ev := range events {
		switch ev.Kind {
		case getter.Connected:
			fmt.Println(colors.Connected("connected to"), t.Address)
		case getter.FoundCollection:
			fmt.Println(colors.Found("found collection,"), ev.TotalBlobsSize, "bytes total")
		case getter.NotFound:
			fmt.Println(colors.NotFound("not found:"), ev.Hash)
			os.Exit(1)
		case getter.Receiving:
			name := ev.Name
			if name == "" {
				name = singleName
			}
			fmt.Println(colors.Found("receiving"), name)
			if err := writeFile(fetchOutDir, name, ev.Reader); err != nil {
				log.Fatalf("write %s: %v", name, err)
			}
		case getter.Done:
			fmt.Println(colors.SuccessText("done,"), ev.Stats.DataLen, "bytes in", ev.Stats.Elapsed)
		case getter.Error:
			log.Fatalf("transfer failed: %v", ev.Err)
		}
	}
}

func writeFile(dir, name string, r io.Reader) error {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}
