package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/edgevisor/internal/cliconfig"
	"github.com/bft-labs/edgevisor/pkg/edgevisor"
	"github.com/bft-labs/edgevisor/pkg/log"
)

const helpDescription = `
Run the services of an edge device in dependency order.

Highlights:
  - Declares services, their lifecycle scripts and dependencies in YAML or TOML.
  - Restarts failed services within a retry budget and cascades dependency state.
  - Stops everything in reverse order within a global deadline.
  - Reloads the services file on change; configure via file, env, or flags.
`

var exampleUsage = strings.TrimSpace(`
  edgevisor run --services /etc/edgevisor/services.yaml
  edgevisor run --config $HOME/.edgevisor/config.toml --metrics-addr :9100
  edgevisor order --services services.yaml
  edgevisor status --status-file /var/lib/edgevisor
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return edgevisor.Version
}

// settings resolves the CLI configuration: defaults, then the TOML file,
// then EDGEVISOR_* variables, then explicitly set flags.
type settings struct {
	cfg     cliconfig.Config
	cfgPath string
}

func (s *settings) load(cmd *cobra.Command) error {
	cfgFile := s.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&s.cfg, fc, changed); err != nil {
			return err
		}
	}
	return cliconfig.ApplyEnvConfig(&s.cfg, changed)
}

// logger builds the zerolog-backed logger for the resolved settings.
func (s *settings) logger() (*log.ZerologAdapter, error) {
	var l *log.ZerologAdapter
	if s.cfg.LogJSON {
		l = log.NewJSONAdapter(os.Stderr)
	} else {
		l = log.NewZerologAdapter()
	}
	if err := l.SetLevel(s.cfg.LogLevel); err != nil {
		return nil, err
	}
	return l, nil
}

func main() {
	s := &settings{cfg: cliconfig.DefaultConfig()}

	root := &cobra.Command{
		Use:           "edgevisor",
		Short:         "Run the services of an edge device in dependency order",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&s.cfgPath, "config", "", "path to CLI config file (default: $HOME/.edgevisor/config.toml)")
	pf.StringVar(&s.cfg.Services, "services", s.cfg.Services, "YAML or TOML file declaring the services")
	pf.StringVar(&s.cfg.StatusFile, "status-file", s.cfg.StatusFile, "status report file or directory")
	pf.StringVar(&s.cfg.LogLevel, "log-level", s.cfg.LogLevel, "log level (debug, info, warn, error)")
	pf.BoolVar(&s.cfg.LogJSON, "log-json", s.cfg.LogJSON, "log as JSON lines")

	root.AddCommand(newRunCommand(s), newOrderCommand(s), newStatusCommand(s))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "edgevisor:", err)
		os.Exit(1)
	}
}
