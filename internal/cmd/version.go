package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var (
	extended    bool
	versionJSON bool
)

// versionReport is the --json shape of the version command.
type versionReport struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	Go        string `json:"go"`
	Gofulmen  string `json:"gofulmen"`
	Crucible  string `json:"crucible"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for build, Go and Gofulmen details.",
	RunE: func(cmd *cobra.Command, args []string) error {
		name := "contextlens"
		if identity := GetAppIdentity(); identity != nil && identity.BinaryName != "" {
			name = identity.BinaryName
		}
		libs := crucible.GetVersion()
		report := versionReport{
			Name:      name,
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
			Go:        runtime.Version(),
			Gofulmen:  libs.Gofulmen,
			Crucible:  libs.Crucible,
		}

		out := cmd.OutOrStdout()
		switch {
		case versionJSON:
			payload, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, string(payload))
			return err
		case extended:
			fmt.Fprintf(out, "%s %s\n", report.Name, report.Version)
			fmt.Fprintf(out, "Commit: %s\nBuilt: %s\nGo: %s\n\n", report.Commit, report.BuildDate, report.Go)
			fmt.Fprintf(out, "Gofulmen: %s\nCrucible: %s\n", report.Gofulmen, report.Crucible)
		default:
			fmt.Fprintf(out, "%s %s\n", report.Name, report.Version)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print version information as JSON")
}
