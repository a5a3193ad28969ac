package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/oneconcern/flashfs/pkg/files"
	"github.com/spf13/cobra"
)

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Commands to manage folders",
	Long: `Commands to manage folders.

Folders group files. They are identified by a number, 0 being the root folder.
A file belongs to at most one folder.`,
}

func parseFolderID(arg string) (uint32, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid folder ID %q: %w", arg, err)
	}
	return uint32(id), nil
}

var folderCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withSession("create folder", func(s *session) error {
			id, err := s.fs.CreateFolder(args[0], params.folder.parent)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		})
	},
}

var folderAttachCmd = &cobra.Command{
	Use:   "attach FILE",
	Short: "Attach a file to a folder",
	Long:  "Attach a file to a folder, detaching it from its current folder. Attaching to folder 0 moves the file back to the root.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withSession("attach file", func(s *session) error {
			return s.fs.AttachFileToFolder(args[0], params.folder.id)
		})
	},
}

type folderListing struct {
	Folders []files.Folder `json:"folders,omitempty" yaml:"folders,omitempty"`
	Files   []string       `json:"files,omitempty" yaml:"files,omitempty"`
}

var folderListCmd = &cobra.Command{
	Use:     "ls [ID]",
	Aliases: []string{"list"},
	Short:   "List folders, or the files in a folder",
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withSession("list folders", func(s *session) error {
			var listing folderListing
			if len(args) == 0 {
				folders, err := s.fs.Folders()
				if err != nil {
					return err
				}
				listing.Folders = folders
				return print(cmd, listing)
			}
			id, err := parseFolderID(args[0])
			if err != nil {
				return err
			}
			if listing.Files, err = s.fs.FilesInFolder(id); err != nil {
				return err
			}
			return print(cmd, listing)
		})
	},
}

var folderRemoveCmd = &cobra.Command{
	Use:     "rm ID",
	Aliases: []string{"remove"},
	Short:   "Delete a folder",
	Long:    "Delete a folder together with its files. Protected files are moved back to the root. Folders with subfolders cannot be deleted.",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withSession("delete folder", func(s *session) error {
			id, err := parseFolderID(args[0])
			if err != nil {
				return err
			}
			return s.fs.DeleteFolder(id)
		})
	},
}

func init() {
	addParentFlag(folderCreateCmd)
	folderCmd.AddCommand(folderCreateCmd)

	addFolderFlag(folderAttachCmd)
	folderCmd.AddCommand(folderAttachCmd)

	addFormatFlag(folderListCmd, "table", map[string]Formatter{
		"table": FormatterFunc(func(w io.Writer, data interface{}) error {
			listing := data.(folderListing)
			if listing.Folders == nil {
				table := newTable("FILE")
				for _, name := range listing.Files {
					table.AddRow(name)
				}
				return writeTable(w, table)
			}
			table := newTable("ID", "NAME", "PARENT")
			for _, folder := range listing.Folders {
				table.AddRow(folder.ID, folder.Name, folder.Parent)
			}
			return writeTable(w, table)
		}),
	})
	folderCmd.AddCommand(folderListCmd)

	folderCmd.AddCommand(folderRemoveCmd)
	rootCmd.AddCommand(folderCmd)
}
