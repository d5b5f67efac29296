package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"celebdetect/internal/domain"
	"celebdetect/internal/vision"
	"celebdetect/internal/vision/cascade"
)

var detectOutput string

var detectCmd = &cobra.Command{
	Use:   "detect <image>",
	Short: "Find the largest face in an image and optionally write the annotated copy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, face, err := extractFile(args[0], detectOutput)
		if err != nil {
			return err
		}
		if face == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "no face detected")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "face x=%d y=%d width=%d height=%d\n", face.X, face.Y, face.Width, face.Height)
		return nil
	},
}

// extractFile runs the face extractor on path and writes the annotated image
// to output when a face was found and output is set.
func extractFile(path, output string) ([]byte, *domain.FaceRegion, error) {
	cfg, log := current.cfg, current.log

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	detector, err := cascade.New(&cfg.Detector, log)
	if err != nil {
		return nil, nil, err
	}
	defer detector.Close()

	annotated, face, err := vision.NewExtractor(detector, cfg.Detector.MaxPixels, log).Extract(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	if face != nil && output != "" {
		if err := os.WriteFile(output, annotated, 0644); err != nil {
			return nil, nil, fmt.Errorf("failed to write %s: %w", output, err)
		}
	}

	return annotated, face, nil
}

func init() {
	detectCmd.Flags().StringVarP(&detectOutput, "output", "o", "", "write the annotated JPEG to this path")
	rootCmd.AddCommand(detectCmd)
}
