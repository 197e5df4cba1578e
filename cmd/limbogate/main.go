package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/siohaza/limbogate/internal/app"
	"github.com/siohaza/limbogate/internal/compat"
	"github.com/siohaza/limbogate/internal/logger"
	"github.com/siohaza/limbogate/internal/memory"
	"github.com/siohaza/limbogate/internal/proxy"
	"github.com/siohaza/limbogate/internal/scheduler"
	"github.com/siohaza/limbogate/pkg/config"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	logLevel    string
	logFormat   string
	servers     []string
	showMetrics bool
	version     = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "limbogate",
	Short: "Limbogate - holding sessions for proxied game networks",
	Long: `Limbogate parks players in lightweight holding sessions ("limbos") instead of
routing them to backends that are down, restarting or waiting for them to log in.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runCheck,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and build every session",
	Long:  "Load the configuration, build every session on the in-memory runtime and report what would be registered",
	RunE:  runCheck,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List configured sessions",
	RunE:  runSessions,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run against the in-memory runtime until interrupted",
	Long:  "Start the layer on the in-memory reference runtime with real timers. SIGHUP reloads the configuration.",
	RunE:  runStart,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Limbogate v%s\n", version)
		fmt.Println("Holding-session redirection layer")
		fmt.Println("Built with Go")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.toml", "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json, color)")
	rootCmd.PersistentFlags().StringArrayVarP(&servers, "server", "s", nil, "backend server as name=host:port, repeatable")

	checkCmd.Flags().BoolVar(&showMetrics, "metrics", false, "print metrics after the check")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
}

func parseServer(s string) (proxy.ServerInfo, error) {
	name, addr, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return proxy.ServerInfo{}, fmt.Errorf("invalid server %q, expected name=host:port", s)
	}
	host, portStr, ok := strings.Cut(addr, ":")
	if !ok {
		return proxy.ServerInfo{}, fmt.Errorf("invalid server address %q", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return proxy.ServerInfo{}, fmt.Errorf("invalid server port %q", portStr)
	}
	return proxy.ServerInfo{Name: strings.TrimSpace(name), Host: host, Port: port}, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogger returns the logger and a func closing the log file, if any.
func setupLogger(cfg *config.Config, w io.Writer) (*slog.Logger, func(), error) {
	level := logger.ParseLevel(logLevel)
	if cfg != nil && cfg.Debug {
		level = slog.LevelDebug
	}

	closeFn := func() {}
	if cfg != nil && cfg.LogToFile {
		f, err := logger.OpenLogFile("logs", time.Now())
		if err != nil {
			return nil, nil, err
		}
		w = io.MultiWriter(w, f)
		closeFn = func() { f.Close() }
	}

	log := logger.New(logFormat, level, w)
	slog.SetDefault(log)
	return log, closeFn, nil
}

type runtime struct {
	players *memory.Players
	servers *memory.Servers
	engine  *memory.Engine
	overlay *compat.Overlay
}

func newRuntime(sched proxy.Scheduler) (*runtime, error) {
	infos := make([]proxy.ServerInfo, 0, len(servers))
	for _, s := range servers {
		info, err := parseServer(s)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}

	return &runtime{
		players: memory.NewPlayers(),
		servers: memory.NewServers(infos...),
		engine:  memory.NewEngine(sched),
		overlay: compat.NewOverlay(),
	}, nil
}

func buildApp(cfg *config.Config, log *slog.Logger, sched proxy.Scheduler, reg prometheus.Registerer) (*app.App, *runtime, error) {
	rt, err := newRuntime(sched)
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(cfg, app.Deps{
		Players:    rt.players,
		Servers:    rt.servers,
		Scheduler:  sched,
		Engine:     rt.engine,
		Shim:       rt.overlay,
		Registerer: reg,
		ConfigPath: configPath,
		Logger:     log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create app: %w", err)
	}
	return a, rt, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, closeLog, err := setupLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	out := cmd.OutOrStdout()
	warn := color.New(color.FgYellow)
	for _, w := range cfg.Warnings() {
		warn.Fprintf(out, "warning: %s\n", w)
	}

	reg := prometheus.NewRegistry()
	sched := memory.NewManualScheduler(time.Now())
	a, rt, err := buildApp(cfg, log, sched, reg)
	if err != nil {
		return err
	}
	defer a.Stop()
	if err := a.Start(); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	ok := color.New(color.FgGreen)
	names := a.Registry().Names()
	ok.Fprintf(out, "%d of %d sessions built\n", len(names), len(cfg.Sessions))
	for _, name := range cfg.SessionNames() {
		h, err := a.Registry().Session(name)
		if err != nil {
			warn.Fprintf(out, "  %-12s not built\n", name)
			continue
		}
		fmt.Fprintf(out, "  %-12s %-10s %-10s %s\n", name, h.Dimension(), h.GameMode(), h.Movement())
	}

	aliases := a.Bridge().Registered()
	fmt.Fprintf(out, "%d aliases registered\n", len(aliases))
	for _, alias := range aliases {
		if info, found := rt.servers.Server(alias); found {
			fmt.Fprintf(out, "  %-12s -> %s (%s:%d)\n", alias, cfg.Bridge.Aliases[alias], info.Host, info.Port)
		}
	}
	fmt.Fprintf(out, "%d lua commands loaded\n", a.Commands().Count())

	if showMetrics {
		families, err := reg.Gather()
		if err != nil {
			return fmt.Errorf("failed to gather metrics: %w", err)
		}
		for _, mf := range families {
			if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
				return fmt.Errorf("failed to write metrics: %w", err)
			}
		}
	}
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	aliasesBySession := make(map[string][]string)
	for _, alias := range cfg.AliasNames() {
		target := cfg.Bridge.Aliases[alias]
		aliasesBySession[target] = append(aliasesBySession[target], alias)
	}

	out := cmd.OutOrStdout()
	for _, name := range cfg.SessionNames() {
		s := cfg.Sessions[name]
		state := color.GreenString("enabled")
		if !s.Enabled {
			state = color.RedString("disabled")
		}
		aliases := aliasesBySession[name]
		sort.Strings(aliases)
		fmt.Fprintf(out, "%-12s %s dimension=%s movement=%s commands=%s aliases=%s\n",
			name, state, s.Dimension, s.Settings.Movement,
			strings.Join(s.Commands, ","), strings.Join(aliases, ","))
	}
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, closeLog, err := setupLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer closeLog()

	log.Info("starting limbogate", "version", version)

	sched := scheduler.New(log)
	defer sched.Stop()

	a, _, err := buildApp(cfg, log, sched, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for sig := range sigChan {
		if sig != syscall.SIGHUP {
			break
		}
		if err := a.Reload(); err != nil {
			log.Error("reload failed", "error", err)
		}
	}

	log.Info("shutting down")
	a.Stop()
	log.Info("limbogate stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
