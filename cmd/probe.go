package root

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/pion/stun/v3"
	"github.com/spf13/cobra"

	"github.com/inercia/violet/pkg/config"
)

// newProbeCommand returns the command that checks that a relay answers STUN.
func newProbeCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "probe ADDR",
		Short: "Send a STUN Binding request to a relay",
		Long: `Send a STUN Binding request to ADDR and print the address the relay
sees the request coming from. ADDR is host or host:port; the port defaults
to 3478.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			mapped, rtt, err := probe(probeAddress(args[0]), timeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n",
				color.GreenString("Mapped address"), mapped, rtt.Round(time.Microsecond))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for an answer")
	return cmd
}

// probeAddress adds the default STUN port to addr when it has none.
func probeAddress(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(config.DefaultPort))
}

// probe performs one STUN Binding transaction against addr.
func probe(addr string, timeout time.Duration) (net.Addr, time.Duration, error) {
	client, err := stun.Dial("udp", addr)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to reach %s: %w", addr, err)
	}
	defer func() { _ = client.Close() }()

	type result struct {
		addr stun.XORMappedAddress
		err  error
	}
	done := make(chan result, 1)

	start := time.Now()
	go func() {
		var res result
		err := client.Do(stun.MustBuild(stun.TransactionID, stun.BindingRequest), func(e stun.Event) {
			if e.Error != nil {
				res.err = e.Error
				return
			}
			res.err = res.addr.GetFrom(e.Message)
		})
		if err != nil {
			res.err = err
		}
		done <- res
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, 0, fmt.Errorf("binding request to %s failed: %w", addr, res.err)
		}
		return &net.UDPAddr{IP: res.addr.IP, Port: res.addr.Port}, time.Since(start), nil
	case <-time.After(timeout):
		return nil, 0, fmt.Errorf("no answer from %s within %s", addr, timeout)
	}
}
