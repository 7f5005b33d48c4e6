// Command consolectl is the operator CLI for the subscription admin API.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"subadmin/internal/config"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries the global flags and the output of one invocation.
type cli struct {
	out     io.Writer
	apiURL  string
	actor   string
	timeout time.Duration
	build   config.BuildInfo
}

func (c *cli) client() *apiClient {
	return newAPIClient(c.apiURL, c.actor, c.timeout, c.build.Version)
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out, build: config.NewBuildInfo()}

	defaultURL := os.Getenv("CONSOLECTL_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	root := &cobra.Command{
		Use:           "consolectl",
		Short:         "Operate the subscription admin console",
		Long:          `Inspect and act on subscription requests, quotations and invoices through the admin API.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.SetErr(out)
	root.PersistentFlags().StringVar(&c.apiURL, "api-url", defaultURL, "admin API base URL (env CONSOLECTL_API_URL)")
	root.PersistentFlags().StringVar(&c.actor, "as", os.Getenv("CONSOLECTL_ACTING_USER"), "act as this user id (X-Acting-User)")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 15*time.Second, "per-request timeout")

	root.AddCommand(
		c.requestsCmd(),
		c.invoicesCmd(),
		c.quoteCmd(),
		c.sweepCmd(),
		c.analyticsCmd(),
		c.auditCmd(),
		c.versionCmd(),
	)
	return root
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.out, "consolectl %s\n", c.build.Version)
			if c.build.BuildTime != "unknown" {
				fmt.Fprintf(c.out, "Built: %s\n", c.build.BuildTime)
			}
			if c.build.Commit != "none" {
				fmt.Fprintf(c.out, "Commit: %s\n", c.build.Commit)
			}
		},
	}
}
