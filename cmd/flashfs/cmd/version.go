package cmd

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/oneconcern/flashfs/pkg/logstore"
	"github.com/spf13/cobra"
)

// Set at link time, e.g. -ldflags "-X github.com/oneconcern/flashfs/cmd/flashfs/cmd.Version=v1.2.0"
var (
	Version   string
	BuildDate string
	GitCommit string
)

type buildInfo struct {
	Version   string `json:"version" yaml:"version"`
	BuildDate string `json:"buildDate,omitempty" yaml:"buildDate,omitempty"`
	Commit    string `json:"commit,omitempty" yaml:"commit,omitempty"`
	Modified  bool   `json:"modified,omitempty" yaml:"modified,omitempty"`
	Go        string `json:"go" yaml:"go"`
}

// storeFormat describes what this binary reads and writes on flash
type storeFormat struct {
	Version   uint16 `json:"version" yaml:"version"`
	MaxKeyLen int    `json:"maxKeyLen" yaml:"maxKeyLen"`
}

type versionInfo struct {
	Build  buildInfo   `json:"build" yaml:"build"`
	Format storeFormat `json:"format" yaml:"format"`
}

func newVersionInfo() versionInfo {
	v := versionInfo{
		Build: buildInfo{
			Version:   "dev",
			BuildDate: BuildDate,
			Commit:    GitCommit,
		},
		Format: storeFormat{
			Version:   logstore.FormatVersion,
			MaxKeyLen: logstore.MaxKeyLen,
		},
	}
	if Version != "" {
		v.Build.Version = Version
	}
	// without link time values, fall back on what the go tool stamped
	if bi, ok := debug.ReadBuildInfo(); ok {
		v.Build.Go = bi.GoVersion
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				if v.Build.Commit == "" {
					v.Build.Commit = setting.Value
				}
			case "vcs.time":
				if v.Build.BuildDate == "" {
					v.Build.BuildDate = setting.Value
				}
			case "vcs.modified":
				v.Build.Modified = setting.Value == "true"
			}
		}
	}
	return v
}

func versionTable(w io.Writer, data interface{}) error {
	v := data.(versionInfo)
	commit := v.Build.Commit
	if v.Build.Modified {
		commit += " (modified)"
	}
	table := newTable("COMPONENT", "VALUE")
	table.AddRow("version", v.Build.Version)
	table.AddRow("build date", v.Build.BuildDate)
	table.AddRow("commit", commit)
	table.AddRow("go", v.Build.Go)
	table.AddRow("store format", fmt.Sprintf("v%d, keys up to %d bytes", v.Format.Version, v.Format.MaxKeyLen))
	return writeTable(w, table)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of flashfs",
	Long: `Print the version of flashfs, and the version of the store format it handles.

Flash images formatted with another store format version do not mount: they are formatted again.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := print(cmd, newVersionInfo()); err != nil {
			wrapFatalln("print version", err)
		}
	},
}

func init() {
	addFormatFlag(versionCmd, "table", map[string]Formatter{
		"table": FormatterFunc(versionTable),
	})
	rootCmd.AddCommand(versionCmd)
}
