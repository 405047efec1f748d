package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bsdavidson/oink/internal/server"
)

var (
	serveHost      string
	servePort      int
	serveAdvertise bool
	serveInstance  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP bridge",
	Long: `Connect to the receiver and serve its commands over HTTP.

  GET  /<CMD>              query the current value (parameter QSTN)
  POST /<CMD>              send {"parameter": "..."}
  GET  /events             WebSocket stream of every packet (?encoding=cbor)
  GET  /healthz            bridge and receiver status

Add ?timeout=<ms> to a command request to override the command timeout.
With --advertise the bridge is announced over mDNS so "oink bridges" can
find it.`,
	Example: `  # Bridge the first receiver found on port 8080
  oink serve

  # Bridge a given receiver on localhost only
  oink serve --device 192.168.1.50 --listen 127.0.0.1 --http-port 9000

  # Announce the bridge on the local network
  oink serve --advertise --instance livingroom`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "listen", "", "Host to listen on (default from config, 0.0.0.0)")
	serveCmd.Flags().IntVar(&servePort, "http-port", 0, "HTTP port (default from config, 8080)")
	serveCmd.Flags().BoolVar(&serveAdvertise, "advertise", false, "Announce the bridge over mDNS")
	serveCmd.Flags().StringVar(&serveInstance, "instance", "", "mDNS instance name (default: hostname)")
}

func runServe(cmd *cobra.Command, args []string) error {
	srvConfig := serverConfig(cmd)

	t, err := getTarget(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	srv, err := server.New(srvConfig, newDevice(t))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Bridging %s on http://%s:%d\n", t, srvConfig.Host, srvConfig.Port)
	return srv.Start()
}

// serverConfig merges the config file with command line flags
func serverConfig(cmd *cobra.Command) *server.Config {
	c := &server.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		Advertise: cfg.Server.Advertise,
		Instance:  cfg.Server.Instance,
	}
	flags := cmd.Flags()
	if flags.Changed("listen") {
		c.Host = serveHost
	}
	if flags.Changed("http-port") {
		c.Port = servePort
	}
	if flags.Changed("advertise") {
		c.Advertise = serveAdvertise
	}
	if flags.Changed("instance") {
		c.Instance = serveInstance
	}
	return c
}
