// pulsectl is a command line client for the IronPulse relay.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/ironpulse/clients/go/ironpulse"
)

func main() {
	var (
		addr     string
		clientID string
	)
	client := func() (*ironpulse.Client, error) {
		return ironpulse.NewClient(addr, clientID)
	}

	rootCmd := &cobra.Command{
		Use:          "pulsectl",
		Short:        "IronPulse relay CLI",
		Long:         "pulsectl talks to an IronPulse relay. Settings come from flags, IRONPULSE_* variables or ~/.ironpulse.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "Relay address (default $IRONPULSE_ADDR or 127.0.0.1:9518)")
	rootCmd.PersistentFlags().StringVar(&clientID, "client", "", "Client ID (default $IRONPULSE_CLIENT_ID)")

	// config
	configCmd := &cobra.Command{
		Use:   "config <integrity-key-hex>",
		Short: "Save address, client ID and integrity key to the config dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			if err := c.SaveConfig(args[0]); err != nil {
				return err
			}
			fmt.Printf("Saved config for %s at %s\n", c.ClientID, c.ConfigDir)
			return nil
		},
	}
	rootCmd.AddCommand(configCmd)

	// channel create|register|delete
	channelCmd := &cobra.Command{Use: "channel", Short: "Channel operations"}
	channelCmd.AddCommand(
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create a channel",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client()
				if err != nil {
					return err
				}
				if err := c.CreateChannel(args[0]); err != nil {
					return err
				}
				fmt.Println("created:", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "register <name>",
			Short: "Register this client on a channel",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client()
				if err != nil {
					return err
				}
				if err := c.RegisterChannel(args[0]); err != nil {
					return err
				}
				fmt.Println("registered:", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete a channel and its messages",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client()
				if err != nil {
					return err
				}
				if err := c.DeleteChannel(args[0]); err != nil {
					return err
				}
				fmt.Println("deleted:", args[0])
				return nil
			},
		},
	)
	rootCmd.AddCommand(channelCmd)

	// send
	sendCmd := &cobra.Command{
		Use:   "send <channel> [message]",
		Short: "Store a message (reads stdin when message is omitted)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgType, _ := cmd.Flags().GetString("type")
			var body []byte
			if len(args) == 2 {
				body = []byte(args[1])
			} else {
				var err error
				if body, err = io.ReadAll(os.Stdin); err != nil {
					return err
				}
			}
			c, err := client()
			if err != nil {
				return err
			}
			if err := c.Store(args[0], msgType, body); err != nil {
				return err
			}
			fmt.Println("stored")
			return nil
		},
	}
	sendCmd.Flags().String("type", "text", "Message type")
	rootCmd.AddCommand(sendCmd)

	// recv
	recvCmd := &cobra.Command{
		Use:   "recv <channel>",
		Short: "Fetch one pending message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ack, _ := cmd.Flags().GetBool("ack")
			c, err := client()
			if err != nil {
				return err
			}
			d, err := c.Check(args[0])
			if err != nil {
				return err
			}
			if d == nil {
				fmt.Fprintln(os.Stderr, "no pending messages")
				return nil
			}
			os.Stdout.Write(d.Body)
			fmt.Println()
			if ack {
				return c.Ack(args[0], d.HexBody)
			}
			return nil
		},
	}
	recvCmd.Flags().Bool("ack", false, "Acknowledge the message after printing it")
	rootCmd.AddCommand(recvCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
