package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/docker/go-units"
	"github.com/oneconcern/flashfs/pkg/flash"
	"github.com/oneconcern/flashfs/pkg/logstore"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Format the file store",
	Long:  "Erase both banks of the log store and start an empty generation. All files are lost.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s, err := openDevice()
		if err != nil {
			wrapFatalln("open flash image", err)
			return
		}
		defer s.Close()
		if err := s.store.Format(); err != nil {
			wrapFatalln("format", err)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "formatted %v: %s available\n",
			s.store, units.BytesSize(float64(s.store.FreeSize())))
	},
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Compact the file store",
	Long:  "Copy the live records to the other bank, reclaiming the space of overwritten and removed files.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		withSession("compact", func(s *session) error {
			before := s.store.FreeSize()
			if err := s.store.ForceGC(nil); err != nil {
				return err
			}
			after := s.store.FreeSize()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "reclaimed %s, %s available\n",
				units.BytesSize(float64(after-before)), units.BytesSize(float64(after)))
			return err
		})
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove all user files",
	Long: `Remove all user files, keeping system files only.

When system files still use most of the store, the store is formatted.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		withSession("clean", func(s *session) error {
			formatted, err := s.fs.UserClean()
			if err != nil {
				return err
			}
			msg := "user files removed"
			if formatted {
				msg = "store formatted"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s, %s available\n", msg, units.BytesSize(float64(s.store.FreeSize())))
			return err
		})
	},
}

type deviceInfo struct {
	Image      string         `json:"image" yaml:"image"`
	Base       string         `json:"base" yaml:"base"`
	Capacity   string         `json:"capacity" yaml:"capacity"`
	Size       string         `json:"size" yaml:"size"`
	BootSize   string         `json:"bootSize" yaml:"bootSize"`
	Sectors    []flash.Sector `json:"sectors" yaml:"sectors"`
	Store      string         `json:"store" yaml:"store"`
	LargeStore string         `json:"largeStore,omitempty" yaml:"largeStore,omitempty"`
}

type storeInfo struct {
	Device deviceInfo     `json:"device" yaml:"device"`
	Store  logstore.Stats `json:"store" yaml:"store"`
}

func (s *session) info() (storeInfo, error) {
	region, err := settings.Region()
	if err != nil {
		return storeInfo{}, err
	}
	info := storeInfo{
		Device: deviceInfo{
			Image:    settings.Device.Image,
			Base:     fmt.Sprintf("%#08x", s.device.Base()),
			Capacity: units.BytesSize(float64(s.geometry.Capacity())),
			Size:     units.BytesSize(float64(s.device.TotalSize())),
			BootSize: units.BytesSize(float64(s.geometry.BootSize)),
			Sectors:  s.geometry.Sectors,
			Store:    region.String(),
		},
		Store: s.store.Stats(),
	}
	// the program image is assumed to end where the store starts
	if large := flash.LargeStore(s.device, region.End()); !large.IsZero() {
		info.Device.LargeStore = large.String()
	}
	return info, nil
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Describe the flash part and the file store",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		withSession("describe", func(s *session) error {
			info, err := s.info()
			if err != nil {
				return err
			}
			return print(cmd, info)
		})
	},
}

type metricSample struct {
	Name   string  `json:"name" yaml:"name"`
	Labels string  `json:"labels,omitempty" yaml:"labels,omitempty"`
	Value  float64 `json:"value" yaml:"value"`
}

func gatherSamples(families []*dto.MetricFamily) []metricSample {
	var samples []metricSample
	for _, family := range families {
		for _, m := range family.GetMetric() {
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				value = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			labels := make([]string, 0, len(m.GetLabel()))
			for _, pair := range m.GetLabel() {
				labels = append(labels, pair.GetName()+"="+pair.GetValue())
			}
			sort.Strings(labels)
			samples = append(samples, metricSample{
				Name:   family.GetName(),
				Labels: strings.Join(labels, ","),
				Value:  value,
			})
		}
	}
	return samples
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Mount the file store and show the collected metrics",
	Long: `Mount the file store, then show the metrics collected on the way:
flash erase and program activity, mount outcome, free space.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		withSession("collect metrics", func(s *session) error {
			families, err := s.registry.Gather()
			if err != nil {
				return err
			}
			return print(cmd, gatherSamples(families))
		})
	},
}

func init() {
	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(cleanCmd)

	addFormatFlag(infoCmd, "yaml", map[string]Formatter{})
	rootCmd.AddCommand(infoCmd)

	addFormatFlag(statsCmd, "table", map[string]Formatter{
		"table": FormatterFunc(func(w io.Writer, data interface{}) error {
			table := newTable("METRIC", "LABELS", "VALUE")
			for _, sample := range data.([]metricSample) {
				table.AddRow(sample.Name, sample.Labels, sample.Value)
			}
			return writeTable(w, table)
		}),
	})
	rootCmd.AddCommand(statsCmd)
}
