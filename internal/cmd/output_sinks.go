package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/contextlens/contextlens/internal/output"
)

var allFormats = []output.Format{output.FormatTable, output.FormatJSON, output.FormatMarkdown}

// addOutputFlags registers --output-format, --out and --out-dir.
func addOutputFlags(cmd *cobra.Command, formats ...output.Format) {
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: "+output.Usage(formats...))
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
	cmd.Flags().String("out-dir", "", "Write output to a directory")
	cmd.MarkFlagsMutuallyExclusive("out", "out-dir")
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

// sinkPath maps the output flags to a file path; empty means stdout. With
// --out-dir the file is name plus the format extension.
func sinkPath(cmd *cobra.Command, format output.Format, name string) (string, error) {
	flag := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return strings.TrimSpace(v)
	}
	out, dir := flag("out"), flag("out-dir")
	switch {
	case out != "" && dir != "":
		return "", fmt.Errorf("--out and --out-dir are mutually exclusive")
	case dir != "":
		return filepath.Join(dir, sanitizeFilename(name)+"."+format.Extension()), nil
	case out == "-":
		return "", nil
	default:
		return out, nil
	}
}

type outputSink struct {
	writer io.Writer
	close  func() error
}

// openCommandSink opens stdout or the file selected by the output flags,
// creating parent directories as needed.
func openCommandSink(cmd *cobra.Command, format output.Format, name string) (*outputSink, error) {
	path, err := sinkPath(cmd, format, name)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return &outputSink{writer: cmd.OutOrStdout(), close: func() error { return nil }}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(path) // #nosec G304 -- user-selected output path
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close}, nil
}

// writeFormatted renders through the formatter selected by --output-format
// and writes the result to the resolved sink.
func writeFormatted(cmd *cobra.Command, name string, render func(output.Formatter) (string, error)) (err error) {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	rendered, err := render(output.NewFormatter(format))
	if err != nil {
		return err
	}

	sink, err := openCommandSink(cmd, format, name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.close(); err == nil {
			err = cerr
		}
	}()
	_, err = fmt.Fprintln(sink.writer, rendered)
	return err
}

var nonFilename = regexp.MustCompile(`[^a-z0-9._-]+`)

func sanitizeFilename(value string) string {
	clean := nonFilename.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "-")
	if clean = strings.Trim(clean, "-."); clean == "" {
		return "output"
	}
	return clean
}
