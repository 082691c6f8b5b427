package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"info-collecte/internal/logger"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Print the rendered calendar page of an address",
	Long: `Fetch performs the address search and writes the result page markup to
stdout, for use with "collecte parse".`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer func() { _ = log.Sync() }()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	src, err := newSource(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.FetchTimeout)
	defer cancel()

	markup, err := src.Fetch(ctx, cfg.Address)
	if err != nil {
		log.Errorw("fetch failed", logger.FieldAddress, cfg.Address, logger.FieldError, err)
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		fmt.Print(markup)
		return nil
	}
	if err := os.WriteFile(output, []byte(markup), 0644); err != nil {
		return err
	}
	log.Infow("page saved", logger.FieldPath, output, "bytes", len(markup))
	return nil
}
