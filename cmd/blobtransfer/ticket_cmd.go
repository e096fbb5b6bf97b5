package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/javanhut/blobtransfer/internal/colors"
	"github.com/javanhut/blobtransfer/internal/ticket"
)

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Inspect tickets",
}

var ticketShowCmd = &cobra.Command{
	Use:   "show <ticket>",
	Short: "Decode and print a ticket's fields",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		t, err := ticket.Decode(args[0])
		if err != nil {
			log.Fatalf("decode ticket: %v", err)
		}
		fmt.Println(colors.SectionHeader("hash:"), t.Hash)
		fmt.Println(colors.SectionHeader("peer:"), t.PeerId)
		fmt.Println(colors.SectionHeader("address:"), t.Address)
		fmt.Println(colors.SectionHeader("token:"), t.Token)
	},
}
