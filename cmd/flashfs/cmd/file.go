package cmd

import (
	"io"
	"io/ioutil"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/oneconcern/flashfs/pkg/files"
	"github.com/oneconcern/flashfs/pkg/files/status"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// writeFile stores data with the operation matching the family of the file
func writeFile(fs *files.FileSystem, name string, data []byte, appID uint32, create bool) error {
	switch files.FamilyOf(name) {
	case files.CacheFamily:
		if create {
			return fs.CreateCacheFile(name, data)
		}
		return fs.WriteCacheFile(name, data)
	case files.ConfigFamily:
		if create {
			return fs.CreateConfig(name, data)
		}
		return fs.WriteConfig(name, data)
	case files.ProtectedFamily:
		if create {
			return fs.CreateProtected(name, appID, data)
		}
		return fs.WriteProtected(name, appID, data)
	default:
		if create && fs.Exists(name) {
			return status.ErrExists.WrapMessage("%q", name)
		}
		return fs.Write(name, data)
	}
}

func readFile(fs *files.FileSystem, name string, appID uint32) ([]byte, error) {
	if files.FamilyOf(name) == files.ProtectedFamily {
		return fs.ReadProtected(name, appID)
	}
	return fs.Read(name)
}

func removeFile(fs *files.FileSystem, name string, appID uint32) error {
	if files.FamilyOf(name) == files.ProtectedFamily {
		return fs.RemoveProtected(name, appID)
	}
	return fs.Remove(name)
}

var putCmd = &cobra.Command{
	Use:   "put NAME",
	Short: "Store a file",
	Long: `Store a file on flash, from a host file or from stdin.

The extension of the name selects the family of the file:
	* .cache files may be loaded in the RAM cache
	* .config files hold configurations
	* .ptxt files are protected: they belong to the application given by --app-id
	* any other name is a generic file
`,
	Example: `% flashfs put wifi.config -f ./wifi.json
% echo secret | flashfs put token.ptxt --app-id 5 --create`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var (
			data []byte
			err  error
		)
		if params.file.input != "" {
			data, err = afero.ReadFile(appFs, params.file.input)
		} else {
			data, err = ioutil.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			wrapFatalln("read content", err)
			return
		}
		withSession("put "+args[0], func(s *session) error {
			return writeFile(s.fs, args[0], data, params.file.appID, params.file.create)
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Retrieve a file",
	Long:  "Retrieve the content of a file, to a host file or to stdout",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withSession("get "+args[0], func(s *session) error {
			data, err := readFile(s.fs, args[0], params.file.appID)
			if err != nil {
				return err
			}
			if params.file.output != "" {
				return afero.WriteFile(appFs, params.file.output, data, 0644)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		})
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm NAME",
	Aliases: []string{"remove"},
	Short:   "Remove a file",
	Long:    "Remove a file. Protected files may only be removed by their owner.",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withSession("remove "+args[0], func(s *session) error {
			return removeFile(s.fs, args[0], params.file.appID)
		})
	},
}

var lsCmd = &cobra.Command{
	Use:     "ls [PREFIX]",
	Aliases: []string{"list"},
	Short:   "List files",
	Long: `List the files with names starting with a prefix.

System files, whose names start with '#', are only listed when the prefix starts with '#'.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var prefix string
		if len(args) > 0 {
			prefix = args[0]
		}
		withSession("list files", func(s *session) error {
			var (
				names []string
				err   error
			)
			if params.file.owner >= 0 {
				names, err = s.fs.FilesOwnedBy(uint32(params.file.owner), files.CapList)
			} else {
				names, err = s.fs.List(prefix, files.CapList)
			}
			if err != nil {
				return err
			}
			infos := make([]files.Info, 0, len(names))
			for _, name := range names {
				info, err := s.fs.Stat(name)
				if err != nil {
					return err
				}
				infos = append(infos, info)
			}
			return print(cmd, infos)
		})
	},
}

func fileTableFormatter(w io.Writer, data interface{}) error {
	infos := data.([]files.Info)
	table := newTable("NAME", "FAMILY", "SIZE", "STORED", "FOLDER", "OWNER")
	for _, info := range infos {
		name := info.Name
		if files.IsSystem(name) {
			name = color.HiBlackString(name)
		}
		table.AddRow(name, info.Family, units.BytesSize(float64(info.Size)), info.Stored, info.Folder, info.Owner)
	}
	return writeTable(w, table)
}

func init() {
	addInputFlag(putCmd)
	addAppIDFlag(putCmd)
	addCreateFlag(putCmd)
	rootCmd.AddCommand(putCmd)

	addOutputFlag(getCmd)
	addAppIDFlag(getCmd)
	rootCmd.AddCommand(getCmd)

	addAppIDFlag(rmCmd)
	rootCmd.AddCommand(rmCmd)

	addOwnerFlag(lsCmd)
	addFormatFlag(lsCmd, "table", map[string]Formatter{
		"table": FormatterFunc(fileTableFormatter),
	})
	rootCmd.AddCommand(lsCmd)
}
