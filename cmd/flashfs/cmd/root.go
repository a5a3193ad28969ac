// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"log"
	"os"
	"runtime/pprof"

	"github.com/oneconcern/flashfs/pkg/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flashfs",
	Short: "flashfs manages the file system of an emulated flash part",
	Long: `flashfs manages the named files stored on an emulated NOR flash part.

The part is emulated by an image file. A log structured store occupies a region of
the part, split in two banks, and holds cache, config, protected and generic files.

Files may be organized in folders, loaded into a RAM cache, or copied from and to
a host directory.
`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if params.root.cpuProf {
			f, err := os.Create("cpu.prof")
			if err != nil {
				log.Fatal(err)
			}
			_ = pprof.StartCPUProfile(f)
		}
	},
	// upstream api note:  *PostRun functions aren't called in case of a panic() in Run
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if params.root.cpuProf {
			pprof.StopCPUProfile()
		}
	},
}

var settings *config.Config

// appFs is the host file system holding flash images and imported or exported files
var appFs = afero.NewOsFs()

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		osExit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	bindFlag(addImageFlag(rootCmd), "device.image")
	bindFlag(addLogLevelFlag(rootCmd), "logLevel")
	bindFlag(addCompressionFlag(rootCmd), "store.compression")
	addCPUProfFlag(rootCmd)
}

func bindFlag(name, key string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
		panic(err)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetFs(appFs)
	if os.Getenv("FLASHFS_CONFIG") != "" {
		// Use config file from the environment.
		viper.SetConfigFile(os.Getenv("FLASHFS_CONFIG"))
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.flashfs")
		viper.AddConfigPath("/etc/flashfs")
		viper.SetConfigName("flashfs")
	}

	viper.SetEnvPrefix("flashfs")
	viper.SetEnvKeyReplacer(config.EnvKeyReplacer())
	viper.AutomaticEnv() // read in environment variables that match
	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		infoLogger.Println("Using config file:", viper.ConfigFileUsed())
	}

	var err error
	settings, err = config.Load(viper.GetViper())
	if err != nil {
		wrapFatalln("load configuration", err)
	}
}
