package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	transformFlipH  bool
	transformFlipV  bool
	transformRotate bool
	transformWidth  uint32
	transformHeight uint32
	transformJSON   bool

	orientFlipH  bool
	orientFlipV  bool
	orientRotate bool
	orientWidth  uint32
	orientFormat string
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Print the CSS transform for a camera orientation",
	Long: `Prints the transform functions, origin and matrix the preview uses for the
given flip and rotate settings.

Examples:
  nozzlecam transform
  nozzlecam transform --flip-h --flip-v
  nozzlecam transform --rotate --width 640 --height 480 --json`,
	Args: cobra.NoArgs,
	RunE: runTransform,
}

var orientCmd = &cobra.Command{
	Use:   "orient <input> <output>",
	Short: "Apply a camera orientation to an image file",
	Long: `Reads an image (JPEG, PNG, GIF, BMP, TGA or WebP), applies the flip and rotate
settings the same way the preview does, and writes PNG or WebP.

The output format follows --format, or the output file extension.

Examples:
  nozzlecam orient snapshot.jpg out.png --flip-h
  nozzlecam orient snapshot.jpg out.webp --rotate --width 400`,
	Args: cobra.ExactArgs(2),
	RunE: runOrient,
}

func init() {
	transformCmd.Flags().BoolVar(&transformFlipH, "flip-h", false, "Flip horizontally")
	transformCmd.Flags().BoolVar(&transformFlipV, "flip-v", false, "Flip vertically")
	transformCmd.Flags().BoolVar(&transformRotate, "rotate", false, "Rotate 90 degrees")
	transformCmd.Flags().Uint32Var(&transformWidth, "width", 0, "Natural image width, enables the display box and matrix")
	transformCmd.Flags().Uint32Var(&transformHeight, "height", 0, "Natural image height")
	transformCmd.Flags().BoolVar(&transformJSON, "json", false, "Print JSON")

	orientCmd.Flags().BoolVar(&orientFlipH, "flip-h", false, "Flip horizontally")
	orientCmd.Flags().BoolVar(&orientFlipV, "flip-v", false, "Flip vertically")
	orientCmd.Flags().BoolVar(&orientRotate, "rotate", false, "Rotate 90 degrees")
	orientCmd.Flags().Uint32Var(&orientWidth, "width", 0, "Scale the result to this width")
	orientCmd.Flags().StringVarP(&orientFormat, "format", "f", "", "Output format (png, webp)")

	rootCmd.AddCommand(transformCmd)
	rootCmd.AddCommand(orientCmd)
}

// transformReport is what the transform command prints
type transformReport struct {
	State      TransformState `json:"state"`
	Functions  []string       `json:"functions"`
	CSS        string         `json:"css"`
	Origin     string         `json:"origin"`
	DisplayBox *DisplayBox    `json:"display_box,omitempty"`
	Matrix     string         `json:"matrix,omitempty"`
}

func buildTransformReport(state TransformState, naturalWidth, naturalHeight uint32) (transformReport, error) {
	transform := ComputeTransform(state)
	report := transformReport{
		State:     state,
		Functions: make([]string, len(transform.Ops)),
		CSS:       transform.CSS(),
		Origin:    transform.Origin.CSS(),
	}
	for i, op := range transform.Ops {
		report.Functions[i] = op.String()
	}

	if naturalWidth == 0 && naturalHeight == 0 {
		return report, nil
	}

	box, err := ComputeDisplayBox(ImageGeometry{NaturalWidth: naturalWidth, NaturalHeight: naturalHeight}, state)
	if err != nil {
		return report, err
	}
	report.DisplayBox = &box
	report.Matrix = transform.Matrix(float64(box.DisplayWidth), float64(box.DisplayHeight)).CSS()
	return report, nil
}

func runTransform(cmd *cobra.Command, args []string) error {
	state := TransformState{FlipH: transformFlipH, FlipV: transformFlipV, Rotate: transformRotate}
	report, err := buildTransformReport(state, transformWidth, transformHeight)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if transformJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "transform:        %s\n", report.CSS)
	if report.Origin != "" {
		fmt.Fprintf(out, "transform-origin: %s\n", report.Origin)
	}
	if report.DisplayBox != nil {
		box := report.DisplayBox
		fmt.Fprintf(out, "image:            %dx%d\n", box.DisplayWidth, box.DisplayHeight)
		fmt.Fprintf(out, "container:        %dx%d\n", box.ContainerWidth, box.ContainerHeight)
		fmt.Fprintf(out, "matrix:           %s\n", report.Matrix)
	}
	return nil
}

// outputFormat picks the encoder from the flag or the file extension
func outputFormat(flagValue, path string) (string, error) {
	format := strings.ToLower(flagValue)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch format {
	case FormatPNG, FormatWebP:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use png or webp)", format)
	}
}

func runOrient(cmd *cobra.Command, args []string) error {
	inputPath, outputPath := args[0], args[1]

	format, err := outputFormat(orientFormat, outputPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", inputPath, err)
	}

	frame := &Frame{Data: data, Format: filepath.Ext(inputPath)}
	img, err := frame.Decode()
	if err != nil {
		return err
	}

	oriented := OrientImage(img, TransformState{FlipH: orientFlipH, FlipV: orientFlipV, Rotate: orientRotate})
	if orientWidth > 0 {
		if oriented, err = ScaleToWidth(oriented, orientWidth); err != nil {
			return err
		}
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	if err := EncodeImage(f, oriented, format); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	b := oriented.Bounds()
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%dx%d %s)\n", outputPath, b.Dx(), b.Dy(), format)
	return nil
}
