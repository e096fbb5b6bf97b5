package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/javanhut/blobtransfer/internal/config"
	"github.com/javanhut/blobtransfer/internal/keystore"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Print this host's persisted peer identity, generating one if needed",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		kp, token, err := keystore.LoadOrGenerate(cfg.Provider.KeystorePath)
		if err != nil {
			log.Fatalf("load identity: %v", err)
		}
		fmt.Println("peer:", kp.PeerId())
		fmt.Println("fingerprint:", kp.PeerId().Fingerprint())
		fmt.Println("token:", token)
	},
}
