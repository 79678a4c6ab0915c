package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"xenvman/pkg/client"
	"xenvman/pkg/config"
	"xenvman/pkg/container"
	"xenvman/pkg/keeper"
	"xenvman/pkg/specfile"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const version = "0.3.0"

var (
	serverURL  string
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "xenv",
		Short: "xenvman environment client",
		Long: `xenv creates, patches and terminates xenvman environments.

Examples:
  xenv create env.yaml                 # Create an environment
  xenv container ENV_ID web 1 app      # Show one container
  xenv keepalive ENV_ID --watch        # Keep an environment alive
  xenv terminate ENV_ID                # Delete an environment

The XENV_API_SERVER environment variable overrides --server.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "xenvman API server address")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./xenv.yaml or $HOME/.xenv/xenv.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(patchCmd)
	rootCmd.AddCommand(terminateCmd)
	rootCmd.AddCommand(keepaliveCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(containerCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	configCmd.AddCommand(configInitCmd)

	keepaliveCmd.Flags().Bool("watch", false, "keep sending keepalives until interrupted")
	keepaliveCmd.Flags().Duration("interval", 0, "keepalive interval (default: half of the environment keep_alive)")
	createCmd.Flags().Bool("json", false, "print the environment as JSON")
	infoCmd.Flags().Bool("json", false, "print the environment as JSON")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds a logger and a client
func setup() (*config.Config, *logrus.Logger, *client.Client) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fail("failed to load config", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fail("failed to set up logging", err)
	}
	logger.SetOutput(os.Stderr)

	address := cfg.Server.Address
	if serverURL != "" {
		address = serverURL
	}

	c := client.NewClient(address,
		client.WithTimeout(cfg.Server.Timeout),
		client.WithLogger(logger),
	)

	return cfg, logger, c
}

func fail(msg string, err error) {
	fmt.Fprintf(os.Stderr, "❌ %s: %v\n", msg, err)
	os.Exit(1)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fail("failed to encode output", err)
	}
}

var createCmd = &cobra.Command{
	Use:   "create [spec-file]",
	Short: "Create a new environment",
	Long: `Creates an environment from a JSON or YAML definition.

Example:
  xenv create examples/demo.yaml`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, logger, c := setup()

		input, err := specfile.NewLoader(logger).LoadInput(args[0])
		if err != nil {
			fail("failed to load environment definition", err)
		}

		e, err := c.NewEnv(cmd.Context(), input)
		if err != nil {
			fail("failed to create environment", err)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(e.Snapshot())
			return
		}

		fmt.Printf("✅ Environment created\n")
		printEnv(os.Stdout, e.Snapshot())
	},
}

var patchCmd = &cobra.Command{
	Use:   "patch [env-id] [patch-file]",
	Short: "Patch an environment",
	Long: `Stops or restarts containers and adds templates to a running environment.

Example:
  xenv patch 7c2a1f patch.yaml`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		_, logger, c := setup()

		patch, err := specfile.NewLoader(logger).LoadPatch(args[1])
		if err != nil {
			fail("failed to load patch", err)
		}

		e, err := c.AttachEnv(cmd.Context(), args[0])
		if err != nil {
			fail("failed to get environment", err)
		}

		if err := e.Patch(cmd.Context(), patch); err != nil {
			fail("failed to patch environment", err)
		}

		fmt.Printf("✅ Environment patched\n")
		printEnv(os.Stdout, e.Snapshot())
	},
}

var terminateCmd = &cobra.Command{
	Use:     "terminate [env-id]",
	Aliases: []string{"rm", "delete"},
	Short:   "Terminate an environment",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, _, c := setup()

		e, err := c.AttachEnv(cmd.Context(), args[0])
		if err != nil {
			fail("failed to get environment", err)
		}

		if err := e.Terminate(cmd.Context()); err != nil {
			fail("failed to terminate environment", err)
		}

		fmt.Printf("✅ Environment terminated: %s\n", args[0])
	},
}

var keepaliveCmd = &cobra.Command{
	Use:   "keepalive [env-id]",
	Short: "Reset the idle timer of an environment",
	Long: `Sends one keepalive, or keeps sending them with --watch until interrupted.

Example:
  xenv keepalive 7c2a1f --watch --interval 30s`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger, c := setup()

		e, err := c.AttachEnv(cmd.Context(), args[0])
		if err != nil {
			fail("failed to get environment", err)
		}

		if watch, _ := cmd.Flags().GetBool("watch"); !watch {
			if err := e.Keepalive(cmd.Context()); err != nil {
				fail("keepalive failed", err)
			}
			fmt.Printf("✅ Keepalive sent: %s\n", e.ID())
			return
		}

		interval, _ := cmd.Flags().GetDuration("interval")
		if interval == 0 {
			interval = cfg.Keepalive.Interval
		}
		if interval == 0 {
			interval = keeper.IntervalFor(e.Snapshot().KeepAlive)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		k := keeper.New(e, interval, logger)
		fmt.Printf("💓 Keeping %s alive every %s, press Ctrl+C to stop\n", e.ID(), k.Interval())
		if err := k.Run(ctx); err != nil {
			fail("keepalive stopped", err)
		}
	},
}

var infoCmd = &cobra.Command{
	Use:   "info [env-id]",
	Short: "Show an environment",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, _, c := setup()

		out, err := c.GetEnvInfo(cmd.Context(), args[0])
		if err != nil {
			fail("failed to get environment", err)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(out)
			return
		}

		printEnv(os.Stdout, out)
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "envs"},
	Short:   "List environments",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		_, _, c := setup()

		envs, err := c.ListEnvs(cmd.Context())
		if err != nil {
			fail("failed to list environments", err)
		}

		if len(envs) == 0 {
			fmt.Println("No environments found.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tEXTERNAL ADDRESS\tKEEP ALIVE\tCONTAINERS\tCREATED")
		for _, out := range envs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				out.ID, out.Name, out.ExternalAddress, out.KeepAlive, len(out.Containers()), out.Created)
		}
		w.Flush()
	},
}

var templatesCmd = &cobra.Command{
	Use:     "templates",
	Aliases: []string{"tpl"},
	Short:   "List templates available on the server",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		_, _, c := setup()

		tpls, err := c.ListTemplates(cmd.Context())
		if err != nil {
			fail("failed to list templates", err)
		}

		if len(tpls) == 0 {
			fmt.Println("No templates found.")
			return
		}

		printTemplates(os.Stdout, tpls)
	},
}

var containerCmd = &cobra.Command{
	Use:   "container [env-id] [template] [index] [container]",
	Short: "Show one container of an environment",
	Long: `Addresses a container by template name, instantiation index and container name.

Example:
  xenv container 7c2a1f web 1 app`,
	Args: cobra.ExactArgs(4),
	Run: func(cmd *cobra.Command, args []string) {
		idx, err := strconv.Atoi(args[2])
		if err != nil {
			fail("invalid template index", err)
		}

		_, _, c := setup()

		e, err := c.AttachEnv(cmd.Context(), args[0])
		if err != nil {
			fail("failed to get environment", err)
		}

		cont, err := e.GetContainer(args[1], idx, args[3])
		if err != nil {
			fail("lookup failed", err)
		}

		fmt.Printf("ID:       %s\n", cont.ID)
		fmt.Printf("Hostname: %s\n", cont.Hostname)
		fmt.Printf("Ports:    %s\n", formatPorts(e.ExternalAddress(), cont.Ports))
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [env-id]",
	Short: "Show local Docker state of environment containers",
	Long: `Looks every container of an environment up on the Docker daemon configured
by the DOCKER_* environment variables. Useful when xenvman runs on this host.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, logger, c := setup()

		out, err := c.GetEnvInfo(cmd.Context(), args[0])
		if err != nil {
			fail("failed to get environment", err)
		}

		inspector, err := container.NewInspector(logger)
		if err != nil {
			fail("failed to connect to docker", err)
		}
		defer inspector.Close()

		statuses, err := inspector.InspectEnv(cmd.Context(), out)
		if err != nil {
			fail("failed to inspect environment", err)
		}

		printStatuses(os.Stdout, statuses)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the client configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}

		cfg := config.DefaultConfig()
		if serverURL != "" {
			cfg.Server.Address = serverURL
		}

		if err := config.SaveConfig(cfg, path); err != nil {
			fail("failed to save config", err)
		}

		fmt.Println("✅ Configuration saved")
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("xenv %s\n", version)
	},
}
