package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-whatsapp-agent/internal/transcription"
	"github.com/wolfman30/clinic-whatsapp-agent/pkg/logging"
)

func newAccountCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "account",
		Short: "Show the configured business phone number as seen by the Graph API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := loadClient(global)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			raw, err := client.PhoneNumberInfo(ctx)
			if err != nil {
				return err
			}
			var info map[string]any
			if err := json.Unmarshal(raw, &info); err != nil {
				return fmt.Errorf("decode phone number info: %w", err)
			}
			okColor.Fprintln(cmd.OutOrStdout(), "account reachable")
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
}

func newTranscribeCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe <media-id>",
		Short: "Download a voice note and print its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := loadClient(global)
			if err != nil {
				return err
			}
			if !cfg.AgentEnabled() {
				return errors.New("GEMINI_API_KEY is required for transcription")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			gemini, err := transcription.NewGeminiTranscriber(ctx, cfg.GeminiAPIKey, cfg.GeminiTranscriptionModel)
			if err != nil {
				return err
			}
			defer gemini.Close()

			logger := logging.NewWithWriter(cmd.ErrOrStderr(), global.logLevel)
			svc := transcription.NewService(client, transcription.NewFFmpegConverter(cfg.FFmpegPath), gemini, logger, nil)
			text, err := svc.Transcribe(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}
