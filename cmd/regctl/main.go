package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/homegate/registration-server/pkg/client"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "regctl",
	Short: "Registration server CLI",
	Long: `regctl is the command-line interface for a registration server.

It lets a device subscribe a subdomain, keep its dynamic DNS record
current, publish an ACME DNS-01 challenge, and manage discovery ids.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.regctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.regctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "registration server URL (default http://localhost:8080)")

	subscribeCmd.Flags().String("desc", "", "human-readable description of the server")

	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(dnsconfigCmd)
	rootCmd.AddCommand(unsubscribeCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(discoveryCmd)
	rootCmd.AddCommand(versionCmd)

	discoveryCmd.AddCommand(discoveryAddCmd)
	discoveryCmd.AddCommand(discoveryRevokeCmd)
	discoveryCmd.AddCommand(discoveryResolveCmd)
}

func newClient() *client.Client {
	return client.New(serverURL)
}

func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// fatal prints an error and exits non-zero.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "regctl: %v\n", err)
	os.Exit(1)
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <name>",
	Short: "Reserve a subdomain and print its token",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := cmdContext()
		defer cancel()

		desc, _ := cmd.Flags().GetString("desc")
		nt, err := newClient().Subscribe(ctx, args[0], desc)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("name:  %s\ntoken: %s\n", nt.Name, nt.Token)
		fmt.Println("\nKeep the token safe: it is the only credential for this record.")
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <token> <local-ip>",
	Short: "Report the device's current LAN address",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := cmdContext()
		defer cancel()

		if err := newClient().Register(ctx, args[0], args[1]); err != nil {
			fatal(err)
		}
		fmt.Println("registered")
	},
}

var dnsconfigCmd = &cobra.Command{
	Use:   "dnsconfig <token> <challenge>",
	Short: "Publish an ACME DNS-01 challenge value",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := cmdContext()
		defer cancel()

		if err := newClient().SetDNSConfig(ctx, args[0], args[1]); err != nil {
			fatal(err)
		}
		fmt.Println("challenge set")
	},
}

var unsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe <token>",
	Short: "Delete the record for a token",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := cmdContext()
		defer cancel()

		if err := newClient().Unsubscribe(ctx, args[0]); err != nil {
			fatal(err)
		}
		fmt.Println("unsubscribed")
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <token>",
	Short: "Show the full record for a token",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := cmdContext()
		defer cancel()

		rec, err := newClient().Info(ctx, args[0])
		if err != nil {
			fatal(err)
		}
		out, _ := json.MarshalIndent(rec, "", "  ")
		fmt.Println(string(out))
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "List servers on the caller's public network",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := cmdContext()
		defer cancel()

		results, err := newClient().Ping(ctx)
		if err != nil {
			fatal(err)
		}
		printDiscovered(results)
	},
}

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Manage and resolve discovery ids",
}

var discoveryAddCmd = &cobra.Command{
	Use:   "add <token> <disco>",
	Short: "Publish a discovery id for a record",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := cmdContext()
		defer cancel()

		if err := newClient().AddDiscovery(ctx, args[0], args[1]); err != nil {
			fatal(err)
		}
		fmt.Println("discovery id added")
	},
}

var discoveryRevokeCmd = &cobra.Command{
	Use:   "revoke <token> <disco>",
	Short: "Withdraw a discovery id",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := cmdContext()
		defer cancel()

		if err := newClient().RevokeDiscovery(ctx, args[0], args[1]); err != nil {
			fatal(err)
		}
		fmt.Println("discovery id revoked")
	},
}

var discoveryResolveCmd = &cobra.Command{
	Use:   "resolve <disco>",
	Short: "Resolve a discovery id to reachable addresses",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := cmdContext()
		defer cancel()

		results, err := newClient().Discover(ctx, args[0])
		if err != nil {
			fatal(err)
		}
		printDiscovered(results)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the regctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("regctl", version)
	},
}

func printDiscovered(results []client.Discovered) {
	if len(results) == 0 {
		fmt.Println("no servers found")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HREF\tDESCRIPTION")
	for _, d := range results {
		fmt.Fprintf(w, "%s\t%s\n", d.Href, d.Desc)
	}
	w.Flush()
}
