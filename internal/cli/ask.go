package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"celebdetect/internal/llm"
	"celebdetect/internal/service"
)

var askName string

var askCmd = &cobra.Command{
	Use:   "ask --name <celebrity> <question>",
	Short: "Ask a question about a celebrity",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(askName) == "" {
			return errors.New("--name is required")
		}

		svc := service.NewQAService(llm.NewClient(&current.cfg.LLM, current.log), current.log)
		answer, err := svc.Answer(cmd.Context(), askName, strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("question failed (%s): %w", llm.KindOf(err), err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), answer)
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askName, "name", "", "celebrity name")
	rootCmd.AddCommand(askCmd)
}
