// Command wactl is an operator CLI for the clinic's WhatsApp Business number:
// it sends sample messages through the Cloud API, checks the account and
// normalizes phone numbers the same way the webhook does.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-whatsapp-agent/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/clinic-whatsapp-agent/internal/config"
	"github.com/wolfman30/clinic-whatsapp-agent/pkg/logging"
)

var (
	okColor    = color.New(color.FgHiGreen, color.Bold)
	errColor   = color.New(color.FgHiRed, color.Bold)
	labelColor = color.New(color.FgHiCyan)
	dimColor   = color.New(color.FgHiBlack)
)

type globalOptions struct {
	envFile  string
	logLevel string
	noColor  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errColor.Fprint(os.Stderr, "Error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "wactl",
		Short:         "WhatsApp Cloud API operator tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.noColor {
				color.NoColor = true
			}
			return appconfig.LoadDotEnv(opts.envFile)
		},
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading configuration")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level for client diagnostics")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newNormalizeCmd(),
		newSendCmd(opts),
		newDemoCmd(opts),
		newAccountCmd(opts),
		newTranscribeCmd(opts),
	)
	return root
}

// loadClient builds a Cloud API client from the environment.
func loadClient(opts *globalOptions) (*whatsapp.Client, *appconfig.Config, error) {
	cfg := appconfig.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := logging.NewWithWriter(os.Stderr, opts.logLevel)
	client := whatsapp.NewClient(whatsapp.ClientConfig{
		AccessToken:   cfg.WhatsAppAccessToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		APIVersion:    cfg.WhatsAppAPIVersion,
		GraphAPIBase:  cfg.WhatsAppGraphBaseURL,
		Timeout:       cfg.WhatsAppHTTPTimeout,
		Logger:        logger,
	})
	return client, cfg, nil
}

func printSendResult(w io.Writer, label string, resp *whatsapp.SendResponse, err error) {
	labelColor.Fprintf(w, "%-14s ", label)
	if err != nil {
		errColor.Fprint(w, "FAILED ")
		var apiErr *whatsapp.APIError
		if errors.As(err, &apiErr) {
			fmt.Fprintf(w, "%s (status %d, code %d)\n", apiErr.Message, apiErr.StatusCode, apiErr.Code)
			return
		}
		fmt.Fprintln(w, err)
		return
	}
	okColor.Fprint(w, "sent ")
	fmt.Fprintln(w, resp.MessageID())
	if len(resp.Raw) > 0 {
		dimColor.Fprintf(w, "%15s%s\n", "", resp.Raw)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
