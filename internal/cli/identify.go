package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"celebdetect/internal/llm"
	"celebdetect/internal/service"
)

var identifyOutput string

var identifyCmd = &cobra.Command{
	Use:   "identify <image>",
	Short: "Detect the largest face in an image and identify the celebrity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		annotated, face, err := extractFile(args[0], identifyOutput)
		if err != nil {
			return err
		}
		if face == nil {
			return fmt.Errorf("no face detected in %s", args[0])
		}

		svc := service.NewCelebrityService(llm.NewClient(&current.cfg.LLM, current.log), current.log)
		id, err := svc.Recognize(cmd.Context(), annotated)
		if err != nil {
			return fmt.Errorf("identification failed (%s): %w", llm.KindOf(err), err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), id.Info)
		return nil
	},
}

func init() {
	identifyCmd.Flags().StringVarP(&identifyOutput, "output", "o", "", "write the annotated JPEG to this path")
	rootCmd.AddCommand(identifyCmd)
}
