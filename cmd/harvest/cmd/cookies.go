package cmd

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/cookies"
)

var (
	inspectCookie string
	inspectFile   string
)

func init() {
	cookiesCmd.Flags().StringVar(&inspectCookie, "cookie", "", "raw Cookie header")
	cookiesCmd.Flags().StringVar(&inspectFile, "cookie-file", "", "exported cookie JSON file")
	rootCmd.AddCommand(cookiesCmd)
}

var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Parses cookie input the way scrape would and prints the result with values shortened.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		jar, err := cookies.Prepare(
			cookies.Input{Raw: inspectCookie, File: inspectFile},
			cookies.Options{DefaultDomain: cfg.Cookies.DefaultDomain, DefaultTTL: cfg.Cookies.DefaultTTL},
		)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Name", "Value", "Domain", "Path", "HttpOnly", "Secure", "SameSite", "Expires"})
		for _, c := range jar {
			t.AppendRow(table.Row{
				c.Name, cookies.Preview(c.Value), c.Domain, c.Path,
				c.HTTPOnly, c.Secure, c.SameSite, c.ExpiresAt.Format("2006-01-02 15:04"),
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}
