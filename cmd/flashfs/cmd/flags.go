// Copyright © 2018 One Concern

package cmd

import (
	"github.com/oneconcern/flashfs/pkg/dlogger"
	"github.com/spf13/cobra"
)

type flagsT struct {
	root struct {
		image       string
		logLevel    string
		compression bool
		cpuProf     bool
	}
	file struct {
		input  string
		output string
		appID  uint32
		create bool
		owner  int64
	}
	folder struct {
		parent uint32
		id     uint32
	}
	transfer struct {
		exclusive bool
	}
}

var params flagsT

func addImageFlag(cmd *cobra.Command) string {
	flag := "image"
	cmd.PersistentFlags().StringVar(&params.root.image, flag, "", "The flash image file")
	return flag
}

func addLogLevelFlag(cmd *cobra.Command) string {
	flag := "loglevel"
	cmd.PersistentFlags().StringVar(&params.root.logLevel, flag, dlogger.LogLevelInfo, "The logging level. Levels by increasing order of verbosity: none, error, warn, info, debug")
	return flag
}

func addCompressionFlag(cmd *cobra.Command) string {
	flag := "compression"
	cmd.PersistentFlags().BoolVar(&params.root.compression, flag, false, "Store new records snappy compressed when this saves space")
	return flag
}

func addInputFlag(cmd *cobra.Command) string {
	flag := "file"
	cmd.Flags().StringVarP(&params.file.input, flag, "f", "", "Read the content from this host file instead of stdin")
	return flag
}

func addOutputFlag(cmd *cobra.Command) string {
	flag := "out"
	cmd.Flags().StringVarP(&params.file.output, flag, "o", "", "Write the content to this host file instead of stdout")
	return flag
}

func addAppIDFlag(cmd *cobra.Command) string {
	flag := "app-id"
	cmd.Flags().Uint32Var(&params.file.appID, flag, 0, "The application owning protected (.ptxt) files")
	return flag
}

func addCreateFlag(cmd *cobra.Command) string {
	flag := "create"
	cmd.Flags().BoolVar(&params.file.create, flag, false, "Fail if the file already exists")
	return flag
}

func addOwnerFlag(cmd *cobra.Command) string {
	flag := "owner"
	cmd.Flags().Int64Var(&params.file.owner, flag, -1, "Only list the protected files owned by this application")
	return flag
}

func addParentFlag(cmd *cobra.Command) string {
	flag := "parent"
	cmd.Flags().Uint32Var(&params.folder.parent, flag, 0, "The parent folder, 0 being the root")
	return flag
}

func addFolderFlag(cmd *cobra.Command) string {
	flag := "folder"
	cmd.Flags().Uint32Var(&params.folder.id, flag, 0, "The folder to attach the file to")
	return flag
}

func addExclusiveFlag(cmd *cobra.Command) string {
	flag := "exclusive"
	cmd.Flags().BoolVar(&params.transfer.exclusive, flag, false, "Fail on files already present at the destination")
	return flag
}

func addCPUProfFlag(cmd *cobra.Command) string {
	flag := "cpuprof"
	cmd.PersistentFlags().BoolVar(&params.root.cpuProf, flag, false, "Toggle runtime profiling, written to cpu.prof")
	return flag
}
