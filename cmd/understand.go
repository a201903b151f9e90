package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ca-srg/twangy/internal/config"
	"github.com/ca-srg/twangy/internal/nlu"
)

var understandCmd = &cobra.Command{
	Use:   "understand <text...>",
	Short: "Send text to the NLU backend and print its interpretation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if !cfg.HasNLU() {
			return nlu.ErrMissingToken
		}

		ctx := cmd.Context()
		client, err := nlu.NewClient(ctx, nlu.Config{
			APIKey:  cfg.NLUAPIKey,
			Model:   cfg.NLUModel,
			BaseURL: cfg.NLUBaseURL,
		})
		if err != nil {
			return err
		}

		text := strings.Join(args, " ")
		logger.Debug("understand", zap.String("model", client.Model()), zap.Int("chars", len(text)))

		u, err := client.Understand(ctx, text)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(u)
	},
}
