package cmd

import (
	"io"

	"github.com/docker/go-units"
	"github.com/oneconcern/flashfs/pkg/errors"
	"github.com/oneconcern/flashfs/pkg/files"
	"github.com/oneconcern/flashfs/pkg/ramcache"
	"github.com/oneconcern/flashfs/pkg/ramcache/status"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Commands to inspect the RAM cache",
	Long: `Commands to inspect the RAM cache.

Files with the .cache, .bin or .txt extensions may be copied into RAM, within
the budget set by the cache.budget setting.`,
}

type cacheEntry struct {
	Name   string `json:"name" yaml:"name"`
	Size   int    `json:"size" yaml:"size"`
	Cached bool   `json:"cached" yaml:"cached"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

type cacheReport struct {
	Budget  string       `json:"budget" yaml:"budget"`
	Used    string       `json:"used" yaml:"used"`
	Entries []cacheEntry `json:"entries" yaml:"entries"`
}

// cacheableFiles lists the files eligible to the RAM cache
func cacheableFiles(s *session) ([]string, error) {
	names, err := s.fs.List("", files.CapList)
	if err != nil {
		return nil, err
	}
	eligible := names[:0]
	for _, name := range names {
		if ramcache.Cacheable(name) {
			eligible = append(eligible, name)
		}
	}
	return eligible, nil
}

// loadCache loads the files in RAM, in order, until the budget is exhausted
func loadCache(s *session, names []string) (cacheReport, error) {
	for _, name := range names {
		err := s.fs.CacheFile(name)
		switch {
		case err == nil:
		case errors.Is(err, status.ErrNoMemory), errors.Is(err, status.ErrNotCacheable):
			s.l.Debug("file not cached", zap.String("name", name), zap.Error(err))
		default:
			return cacheReport{}, err
		}
	}
	return report(s, names)
}

func report(s *session, names []string) (cacheReport, error) {
	r := cacheReport{
		Budget:  units.BytesSize(float64(s.budget.Limit())),
		Used:    units.BytesSize(float64(s.budget.Used())),
		Entries: make([]cacheEntry, 0, len(names)),
	}
	for _, name := range names {
		info, err := s.fs.Stat(name)
		if err != nil {
			return r, err
		}
		entry := cacheEntry{Name: name, Size: info.Size, Cached: info.Cached}
		switch {
		case !ramcache.Cacheable(name):
			entry.Reason = "not cacheable"
		case !info.Cached:
			entry.Reason = "over budget"
		}
		r.Entries = append(r.Entries, entry)
	}
	return r, nil
}

var cacheLoadCmd = &cobra.Command{
	Use:   "load [NAME...]",
	Short: "Load files in the RAM cache and report what fits",
	Long: `Load the named files in the RAM cache, or all cacheable files when no name is given.

Files are loaded in order until the budget is exhausted.`,
	Run: func(cmd *cobra.Command, args []string) {
		withSession("load cache", func(s *session) error {
			names := args
			if len(names) == 0 {
				var err error
				if names, err = cacheableFiles(s); err != nil {
					return err
				}
			}
			r, err := loadCache(s, names)
			if err != nil {
				return err
			}
			return print(cmd, r)
		})
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the files eligible to the RAM cache",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		withSession("show cache", func(s *session) error {
			names, err := cacheableFiles(s)
			if err != nil {
				return err
			}
			r, err := report(s, names)
			if err != nil {
				return err
			}
			return print(cmd, r)
		})
	},
}

func cacheTableFormatter(w io.Writer, data interface{}) error {
	r := data.(cacheReport)
	table := newTable("NAME", "SIZE", "CACHED", "REASON")
	for _, e := range r.Entries {
		table.AddRow(e.Name, units.BytesSize(float64(e.Size)), e.Cached, e.Reason)
	}
	table.AddRow("")
	table.AddRow("budget", r.Budget, "used", r.Used)
	return writeTable(w, table)
}

func init() {
	addFormatFlag(cacheLoadCmd, "table", map[string]Formatter{"table": FormatterFunc(cacheTableFormatter)})
	cacheCmd.AddCommand(cacheLoadCmd)

	addFormatFlag(cacheShowCmd, "table", map[string]Formatter{"table": FormatterFunc(cacheTableFormatter)})
	cacheCmd.AddCommand(cacheShowCmd)

	rootCmd.AddCommand(cacheCmd)
}
