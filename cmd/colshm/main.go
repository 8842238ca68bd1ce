// Command colshm creates, fills and queries shared-memory column regions.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andreyvit/colshm"
)

func main() {
	if err := newRootCommand(viper.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "colshm",
		Short:         "Share columnar tables between processes through a named memory region",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(v)
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Config file (YAML, JSON or TOML)")
	pf.String("region", "colshm", "Region name")
	pf.Int("capacity", colshm.DefaultCapacity, "Capacity in bytes when creating the region")
	pf.String("dir", "", "Directory holding the region files (default /dev/shm or the temp dir)")
	pf.String("store", "file", "Directory store: file or bolt")
	pf.Bool("sync", false, "Flush the arena after every add")
	pf.String("log-level", "warn", "Log level (debug, info, warn, error)")
	for _, name := range []string{"config", "region", "capacity", "dir", "store", "sync", "log-level"} {
		_ = v.BindPFlag(name, pf.Lookup(name))
	}
	v.SetEnvPrefix("COLSHM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root.AddCommand(
		newAddCommand(v),
		newHeadCommand(v),
		newGroupByCommand(v),
		newMapCommand(v),
		newListCommand(v),
		newUnlinkCommand(v),
		newMetricsCommand(v),
	)
	return root
}

func loadConfig(v *viper.Viper) error {
	file := v.GetString("config")
	if file == "" {
		return nil
	}
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config %s: %w", file, err)
	}
	return nil
}

type settings struct {
	Region   string
	Capacity int
	Dir      string
	Store    string
	Sync     bool
	LogLevel string
}

func readSettings(v *viper.Viper) settings {
	return settings{
		Region:   v.GetString("region"),
		Capacity: v.GetInt("capacity"),
		Dir:      v.GetString("dir"),
		Store:    v.GetString("store"),
		Sync:     v.GetBool("sync"),
		LogLevel: v.GetString("log-level"),
	}
}

func (s settings) options() (colshm.Options, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return colshm.Options{}, fmt.Errorf("invalid log level %q", s.LogLevel)
	}
	opt := colshm.Options{
		Dir:    s.Dir,
		Sync:   s.Sync,
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}
	if opt.Dir == "" {
		opt.Dir = colshm.DefaultDir()
	}
	switch s.Store {
	case "", "file":
	case "bolt":
		opt.Store = colshm.NewBoltStore(filepath.Join(opt.Dir, s.Region+".bolt"))
	default:
		return colshm.Options{}, fmt.Errorf("invalid store %q, wanted file or bolt", s.Store)
	}
	return opt, nil
}

func openRegion(v *viper.Viper) (*colshm.Region, error) {
	s := readSettings(v)
	opt, err := s.options()
	if err != nil {
		return nil, err
	}
	return colshm.OpenOrCreate(s.Region, s.Capacity, opt)
}
