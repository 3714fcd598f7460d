// Command mqttpulse-shell is the interactive streaming shell (spec.md
// §4.6/§4.7): it dials a running mqttpulse daemon's debug tap, mirrors
// every message through an ad-hoc filter and a small rule engine, and
// exposes the stats/topic-tree/flow-timeline visualizations described in
// spec.md §4.9 as line commands typed at a prompt.
//
// CLI surface grounded on the teacher's cmd/hermodctl root command
// (cobra persistent flags bound through viper); the interactive prompt
// itself is a plain stdin read loop, since no line-editing library
// appears anywhere in the retrieved example pack.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gsoultan/mqttpulse/pkg/shelltransport"
)

var (
	tapAddr     string
	format      string
	historyFile string
)

var rootCmd = &cobra.Command{
	Use:   "mqttpulse-shell",
	Short: "mqttpulse-shell streams and filters live MQTT traffic from a running mqttpulse debug tap",
	RunE:  run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tapAddr, "tap", "unix:///tmp/mqttpulse.sock", "debug tap address: unix:///path or ws://host:port")
	rootCmd.PersistentFlags().StringVar(&format, "format", "compact", "message display format: compact, vertical, json")
	rootCmd.PersistentFlags().StringVar(&historyFile, "history-file", "", "optional file to append shell command history to")
	viper.BindPFlag("tap", rootCmd.PersistentFlags().Lookup("tap"))
	viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
}

func run(cmd *cobra.Command, args []string) error {
	transport, err := shelltransport.Dial(tapAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mqttpulse-shell: cannot reach tap at %s: %v\n", tapAddr, err)
		os.Exit(1)
	}
	defer transport.Close()

	sess := newSession(transport, format, historyFile)
	go sess.pump()

	fmt.Printf("mqttpulse-shell connected to %s. Type `help` for commands, `quit` to exit.\n", tapAddr)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("mqttpulse> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if historyFile != "" {
			if f, err := os.OpenFile(historyFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600); err == nil {
				fmt.Fprintln(f, line)
				f.Close()
			}
		}
		if shouldQuit := sess.dispatch(line); shouldQuit {
			break
		}
		if sess.disconnected.Load() {
			fmt.Fprintln(os.Stderr, "mqttpulse-shell: tap disconnected")
			os.Exit(1)
		}
	}
	return nil
}
