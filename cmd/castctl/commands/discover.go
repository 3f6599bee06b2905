package commands

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cablecast/cablecast/internal/discovery"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run a discovery session and print the peers found",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		opts := cfg.DiscoveryOptions()
		if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
			opts.Timeout = timeout
		}
		if opts.Timeout <= 0 {
			// An unbounded interactive session has no way to finish.
			opts.Timeout = 10 * time.Second
		}

		connector := discovery.New(opts, func(conn net.Conn) {
			log.Info().Stringer("peer", conn.RemoteAddr()).Msg("connected")
		})
		if err := connector.Connect(); err != nil {
			return err
		}
		defer connector.PeerTable().CloseAll()

		peers := connector.Peers()
		if len(peers) == 0 {
			fmt.Println("No peers found.")
			return nil
		}
		fmt.Printf("Peers (%d):\n", len(peers))
		for _, addr := range peers {
			fmt.Printf("  %s\n", addr)
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().Duration("timeout", 0, "Stop searching after this long (overrides config)")
}
