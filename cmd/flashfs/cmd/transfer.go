package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"github.com/oneconcern/flashfs/pkg/files"
	"github.com/oneconcern/flashfs/pkg/storage"
	"github.com/oneconcern/flashfs/pkg/storage/flashstore"
	"github.com/oneconcern/flashfs/pkg/storage/localfs"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// transferable skips nested host files, since flash names are not paths,
// as well as system and protected files
func transferable(key string) bool {
	return !strings.Contains(key, "/") && !files.IsSystem(key) && files.FamilyOf(key) != files.ProtectedFamily
}

func transfer(cmd *cobra.Command, action string, fromFlash bool, dir string) {
	withSession(action, func(s *session) error {
		if fromFlash {
			if err := appFs.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
		host := localfs.New(afero.NewBasePathFs(appFs, dir))
		device := flashstore.New(s.fs)
		src, dst := host, device
		if fromFlash {
			src, dst = device, host
		}
		res, err := storage.Copy(context.Background(), src, dst, transferable, params.transfer.exclusive)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "copied %d files (%s) from %v to %v\n",
			len(res.Keys), units.BytesSize(float64(res.Bytes)), src, dst)
		return err
	})
}

var importCmd = &cobra.Command{
	Use:   "import DIR",
	Short: "Copy the files of a host directory to flash",
	Long: `Copy the files at the top of a host directory to flash, under the same names.

Files in subdirectories, protected (.ptxt) files and names starting with '#' are ignored.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		transfer(cmd, "import", false, args[0])
	},
}

var exportCmd = &cobra.Command{
	Use:   "export DIR",
	Short: "Copy the files on flash to a host directory",
	Long: `Copy the files on flash to a host directory, under the same names.

System and protected files are not exported.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		transfer(cmd, "export", true, args[0])
	},
}

func init() {
	addExclusiveFlag(importCmd)
	rootCmd.AddCommand(importCmd)

	addExclusiveFlag(exportCmd)
	rootCmd.AddCommand(exportCmd)
}
