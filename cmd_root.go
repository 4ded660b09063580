package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"propctl/config"
	"propctl/logging"
	"propctl/status"
)

// app holds global flags and the state built from them before a
// subcommand runs.
type app struct {
	cfgFile      string
	host         string
	commandPort  int
	dataPort     int
	packetSize   int
	delay        time.Duration
	replyTimeout time.Duration
	iface        string
	verbose      bool

	cfg      *config.PropctlConfig
	log      *zap.Logger
	closeLog func() error
	mon      *status.Monitor
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "propctl",
		Short: "Control an LED propeller display and upload images to it",
		Long: `propctl talks to a WiFi LED propeller display ("hologram fan").
Playback commands go to the command port, image uploads to the data port.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "YAML config file (defaults apply when unset)")
	pf.StringVar(&a.host, "host", "", "device address (default 192.168.4.1)")
	pf.IntVar(&a.commandPort, "command-port", 0, "command channel port (default 5233)")
	pf.IntVar(&a.dataPort, "data-port", 0, "data channel port (default 5499)")
	pf.IntVar(&a.packetSize, "packet-size", 0, "data frame size in bytes (default 1460)")
	pf.DurationVar(&a.delay, "delay", 0, "pause between data frames (default 40ms)")
	pf.DurationVar(&a.replyTimeout, "reply-timeout", 0, "how long to wait for a command reply, 0 waits forever")
	pf.StringVar(&a.iface, "iface", "", "bind connections to this network interface (Linux only)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging, including drained bytes")

	for _, c := range newOpcodeCmds(a) {
		root.AddCommand(c)
	}
	root.AddCommand(
		newSlotCmd(a),
		newUploadCmd(a),
		newOpcodesCmd(a),
		newConfigCmd(a),
		newSimulateCmd(a),
	)
	return root
}

// setup loads the config file, applies flag overrides and builds the
// logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if a.cfgFile != "" {
		cfg, err := config.LoadConfig(a.cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		a.cfg = cfg
	} else {
		a.cfg = config.Default()
	}

	d := &a.cfg.Device
	flags := cmd.Flags()
	if flags.Changed("host") {
		d.Host = a.host
	}
	if flags.Changed("command-port") {
		d.CommandPort = a.commandPort
	}
	if flags.Changed("data-port") {
		d.DataPort = a.dataPort
	}
	if flags.Changed("packet-size") {
		d.PacketSize = a.packetSize
	}
	if flags.Changed("delay") {
		d.InterPacketDelay = config.DurationString(a.delay)
	}
	if flags.Changed("reply-timeout") {
		d.ReplyTimeout = config.DurationString(a.replyTimeout)
	}
	if flags.Changed("iface") {
		d.InterfaceName = a.iface
	}
	if a.verbose {
		a.cfg.GlobalLog.Verbose = true
	}
	if err := d.Validate(); err != nil {
		return err
	}

	a.log, a.closeLog = logging.New(a.cfg.GlobalLog)
	a.mon = status.NewMonitor()
	return nil
}

func (a *app) teardown(cmd *cobra.Command, args []string) error {
	if a.closeLog != nil {
		return a.closeLog()
	}
	return nil
}
