package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/Wikid82/revalidator/internal/config"
	"github.com/Wikid82/revalidator/internal/logger"
	"github.com/Wikid82/revalidator/internal/models"
	"github.com/Wikid82/revalidator/internal/server"
	"github.com/Wikid82/revalidator/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           version.Name,
		Short:         "Webhook-driven cache revalidation for a headless CMS frontend",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runServe,
	}
	root.PersistentFlags().String("config", "", "Path to a YAML config file (default: $REVALIDATE_CONFIG or ./revalidator.yaml)")
	root.AddCommand(newServeCmd(), newPlanCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE:  runServe,
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// setupLogging sends logs to stdout and a rotated file under logDir. When the
// directory cannot be created only stdout is used.
func setupLogging(logDir string, debug bool) {
	var out io.Writer = os.Stdout
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err == nil {
			out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
				Filename:   filepath.Join(logDir, version.Name+".log"),
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
				Compress:   true,
			})
		}
	}
	logger.Init(debug, out)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg.LogDir, cfg.Debug || cfg.IsDevelopment())
	logger.Log().WithField("version", version.Full()).Infof("starting %s", version.Name)

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Log().Info("shut down cleanly")
	return nil
}

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the invalidation plan for a change event without invalidating anything",
		Example: `  revalidator plan --type post --id 42 --action update --meta slug=hello-world
  revalidator plan --type page --id 7 --action delete --output yaml`,
		RunE: runPlan,
	}
	cmd.Flags().String("type", "", "Content type (post, page, custom, all, ...)")
	_ = cmd.MarkFlagRequired("type")
	cmd.Flags().String("id", "", "Content id")
	cmd.Flags().String("action", "", "Action (create, update, delete, publish, unpublish)")
	_ = cmd.MarkFlagRequired("action")
	cmd.Flags().StringArray("path", nil, "Explicit path (repeatable)")
	cmd.Flags().StringArray("tag", nil, "Explicit tag (repeatable)")
	cmd.Flags().StringArray("meta", nil, "Metadata key=value; separate list values with | (repeatable)")
	cmd.Flags().StringP("output", "o", "json", "Output format (json, yaml)")
	return cmd
}

func runPlan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Keep stdout clean for the plan itself.
	logger.Init(false, io.Discard)

	ev, err := eventFromFlags(cmd)
	if err != nil {
		return err
	}
	if problems := ev.Validate(); len(problems) > 0 {
		return fmt.Errorf("invalid event: %s", strings.Join(problems, "; "))
	}

	engine, err := server.NewEngine(cfg)
	if err != nil {
		return err
	}
	plan := engine.Plan(ev)

	output, _ := cmd.Flags().GetString("output")
	switch output {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	case "yaml":
		return yaml.NewEncoder(cmd.OutOrStdout()).Encode(plan)
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}

func eventFromFlags(cmd *cobra.Command) (models.ChangeEvent, error) {
	ct, _ := cmd.Flags().GetString("type")
	id, _ := cmd.Flags().GetString("id")
	action, _ := cmd.Flags().GetString("action")
	paths, _ := cmd.Flags().GetStringArray("path")
	tags, _ := cmd.Flags().GetStringArray("tag")
	metas, _ := cmd.Flags().GetStringArray("meta")

	ev := models.ChangeEvent{
		ContentType: models.ContentType(strings.TrimSpace(ct)),
		ContentID:   models.ContentID(strings.TrimSpace(id)),
		Action:      models.Action(strings.ToLower(strings.TrimSpace(action))),
		Paths:       paths,
		Tags:        tags,
	}
	for _, kv := range metas {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return ev, fmt.Errorf("--meta %q: expected key=value", kv)
		}
		if ev.Metadata == nil {
			ev.Metadata = map[string]any{}
		}
		if strings.Contains(value, "|") {
			var list []any
			for _, v := range strings.Split(value, "|") {
				list = append(list, v)
			}
			ev.Metadata[strings.TrimSpace(key)] = list
			continue
		}
		ev.Metadata[strings.TrimSpace(key)] = value
	}
	return ev, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Name, version.Full())
		},
	}
}
