package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/charmbracelet/fang"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/evanschultz/hrfeed/internal/adapters/export"
	serveradapter "github.com/evanschultz/hrfeed/internal/adapters/server"
	"github.com/evanschultz/hrfeed/internal/adapters/server/httpapi"
	"github.com/evanschultz/hrfeed/internal/adapters/storage/sqlite"
	"github.com/evanschultz/hrfeed/internal/app"
	"github.com/evanschultz/hrfeed/internal/config"
	"github.com/evanschultz/hrfeed/internal/domain"
	"github.com/evanschultz/hrfeed/internal/platform"
	"github.com/evanschultz/hrfeed/internal/scheduler"
)

// version is stamped at build time.
var version = "dev"

// serveCommandRunner starts the HTTP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

// executeCommand runs the root command with styled help and errors.
var executeCommand = func(ctx context.Context, root *cobra.Command) error {
	return fang.Execute(ctx, root, fang.WithVersion(version))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// run builds the command tree and executes it against args.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return executeCommand(ctx, root)
}

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envPath    string
	dbPath     string
	devMode    bool
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("HRFEED_DEV_MODE"); ok {
		defaultDevMode = envDev
	}

	root := &cobra.Command{
		Use:   "hrfeed",
		Short: "HR activity feed and attendance automation",
		Long: `hrfeed records a chronological feed of HR actions and marks absences daily.

Commands:
  serve          - Start the HTTP API, MCP endpoint, and absence-marking job
  export         - Write the activity log to XLSX or JSON
  mark-absences  - Mark absences for one day immediately
  add-employee   - Register an employee with any role as the local operator
  status         - Show attendance settings and the next scheduled run
  paths          - Show resolved config, env, database, and log paths`,
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.envPath, "env-file", "", "path to .env file")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev-mode paths and the dev log file")

	root.AddCommand(
		newServeCommand(opts, stderr),
		newExportCommand(opts, stdout, stderr),
		newMarkAbsencesCommand(opts, stdout, stderr),
		newAddEmployeeCommand(opts, stdout, stderr),
		newStatusCommand(opts, stdout, stderr),
		newPathsCommand(opts, stdout, stderr),
	)
	return root
}

// runtimeEnv is the resolved runtime state for one command invocation.
type runtimeEnv struct {
	paths      platform.Paths
	configPath string
	envPath    string
	cfg        config.Config
	logger     *runtimeLogger
}

// loadRuntime resolves paths, env files, config, and logging in precedence order:
// flags, then environment, then config file, then defaults.
func loadRuntime(opts *rootOptions, stderr io.Writer) (*runtimeEnv, error) {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: platform.DefaultAppName,
		DevMode: opts.devMode,
	})
	if err != nil {
		return nil, errors.Wrap(err, "resolve paths")
	}

	envPath := strings.TrimSpace(opts.envPath)
	if envPath == "" {
		envPath = ".env"
		if _, statErr := os.Stat(envPath); statErr != nil {
			envPath = paths.EnvPath
		}
	}
	if err := config.LoadDotEnv(envPath); err != nil {
		return nil, err
	}

	configPath := strings.TrimSpace(opts.configPath)
	if configPath == "" {
		configPath = strings.TrimSpace(os.Getenv(config.EnvConfigPath))
	}
	if configPath == "" {
		configPath = paths.ConfigPath
	}

	cfg, err := config.Load(configPath, config.Default(paths.DBPath))
	if err != nil {
		return nil, errors.Wrapf(err, "load config %q", configPath)
	}
	cfg, err = cfg.ApplyEnv(os.LookupEnv)
	if err != nil {
		return nil, err
	}
	if dbPath := strings.TrimSpace(opts.dbPath); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(err, "check the config file and HRFEED_* environment variables")
	}

	logger, err := newRuntimeLogger(stderr, platform.DefaultAppName, opts.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, err
	}
	logger.Debug("runtime resolved", "config", configPath, "db", cfg.Database.Path, "dev_mode", opts.devMode)
	return &runtimeEnv{
		paths:      paths,
		configPath: configPath,
		envPath:    envPath,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// openService opens the database and builds the application service on top of it.
func (env *runtimeEnv) openService() (*sqlite.Repository, *app.Service, error) {
	repo, err := sqlite.Open(env.cfg.Database.Path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open database %q", env.cfg.Database.Path)
	}
	svc := app.NewService(repo, uuid.NewString, nil, app.ServiceConfig{
		DefaultPageSize: env.cfg.Activity.DefaultPageSize,
		MaxPageSize:     env.cfg.Activity.MaxPageSize,
		DefaultSettings: env.cfg.DefaultAttendanceSettings(),
		Logger:          env.logger.Component("service"),
	})
	return repo, svc, nil
}

func (env *runtimeEnv) close() {
	if err := env.logger.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close dev log:", err)
	}
}

func newServeCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	var httpBind, apiEndpoint, mcpEndpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the absence-marking job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadRuntime(opts, stderr)
			if err != nil {
				return err
			}
			defer env.close()
			if strings.TrimSpace(httpBind) != "" {
				env.cfg.Server.HTTPBind = httpBind
			}
			if strings.TrimSpace(apiEndpoint) != "" {
				env.cfg.Server.APIEndpoint = apiEndpoint
			}
			if strings.TrimSpace(mcpEndpoint) != "" {
				env.cfg.Server.MCPEndpoint = mcpEndpoint
			}
			return runServe(cmd.Context(), env)
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base path (overrides config)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP streamable HTTP path (overrides config)")
	return cmd
}

// runServe wires storage, service, scheduler, and HTTP server, then blocks until ctx ends.
func runServe(ctx context.Context, env *runtimeEnv) error {
	repo, svc, err := env.openService()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			env.logger.Warn("close database failed", "err", closeErr)
		}
	}()

	loc, err := env.cfg.Location()
	if err != nil {
		return err
	}
	runTimeout, err := env.cfg.RunTimeout()
	if err != nil {
		return err
	}
	job, err := scheduler.New(scheduler.Config{
		Settings:   svc,
		Marker:     svc,
		Location:   loc,
		RunTimeout: runTimeout,
		Logger:     env.logger.Component("scheduler"),
	})
	if err != nil {
		return errors.Wrap(err, "build absence job")
	}
	svc.SetRescheduler(job)
	if err := job.Initialize(ctx); err != nil {
		// The API stays up; a later settings update retries the schedule.
		env.logger.Error("absence job initialization failed", "err", err)
	}
	defer job.Stop()

	env.logger.Info("serving", "http", env.cfg.Server.HTTPBind, "api", env.cfg.Server.APIEndpoint, "mcp", env.cfg.Server.MCPEndpoint, "db", env.cfg.Database.Path)
	err = serveCommandRunner(ctx, serveradapter.Config{
		HTTPBind:      env.cfg.Server.HTTPBind,
		APIEndpoint:   env.cfg.Server.APIEndpoint,
		MCPEndpoint:   env.cfg.Server.MCPEndpoint,
		ServerName:    platform.DefaultAppName,
		ServerVersion: version,
	}, serveradapter.Dependencies{
		API: httpapi.Dependencies{
			Activities: svc,
			Settings:   svc,
			Employees:  svc,
			Scheduler:  job,
		},
		Ready: repo.Ping,
	})
	if err != nil {
		return errors.Wrap(err, "serve")
	}
	env.logger.Info("server stopped")
	return nil
}

func newExportCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var format, outPath, subjectType string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the activity log to XLSX or JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := export.ParseFormat(format)
			if err != nil {
				return errors.WithHint(err, "use --format xlsx or --format json")
			}
			env, err := loadRuntime(opts, stderr)
			if err != nil {
				return err
			}
			defer env.close()
			return runExport(cmd.Context(), env, export.Options{
				Format:      parsed,
				SubjectType: subjectType,
				PageSize:    env.cfg.Activity.MaxPageSize,
			}, outPath, stdout)
		},
	}
	cmd.Flags().StringVar(&format, "format", "xlsx", "export format: xlsx or json")
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path, or - for stdout")
	cmd.Flags().StringVar(&subjectType, "subject-type", "", "only export activities about this subject type")
	return cmd
}

// runExport writes every matching activity to outPath.
func runExport(ctx context.Context, env *runtimeEnv, opts export.Options, outPath string, stdout io.Writer) (err error) {
	repo, svc, err := env.openService()
	if err != nil {
		return err
	}
	defer repo.Close()

	var out io.Writer = stdout
	outPath = strings.TrimSpace(outPath)
	if outPath != "" && outPath != "-" {
		f, createErr := os.Create(outPath)
		if createErr != nil {
			return errors.Wrapf(createErr, "create export file %q", outPath)
		}
		defer closeInto(&err, f, "close export file "+strconv.Quote(outPath))
		out = f
	}
	count, err := export.Write(ctx, out, svc, opts)
	if err != nil {
		return errors.Wrap(err, "export activities")
	}
	env.logger.Info("export complete", "format", opts.Format, "activities", count, "out", outPath)
	return nil
}

func newMarkAbsencesCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "mark-absences",
		Short: "Mark absences for one day immediately",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadRuntime(opts, stderr)
			if err != nil {
				return err
			}
			defer env.close()
			return runMarkAbsences(cmd.Context(), env, date, time.Now, stdout)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "calendar day YYYY-MM-DD in the scheduler time zone (default today)")
	return cmd
}

func runMarkAbsences(ctx context.Context, env *runtimeEnv, date string, now func() time.Time, stdout io.Writer) error {
	loc, err := env.cfg.Location()
	if err != nil {
		return err
	}
	day := now().In(loc)
	if strings.TrimSpace(date) != "" {
		day, err = time.ParseInLocation(time.DateOnly, strings.TrimSpace(date), loc)
		if err != nil {
			return errors.WithHint(errors.Wrapf(err, "parse --date %q", date), "use YYYY-MM-DD")
		}
	}

	repo, svc, err := env.openService()
	if err != nil {
		return err
	}
	defer repo.Close()

	summary, err := svc.MarkAbsences(ctx, day)
	if err != nil {
		return err
	}
	return writeJSON(stdout, summary)
}

// employeeReport is the CLI projection of one employee.
type employeeReport struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

func newAddEmployeeCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var in domain.EmployeeInput
	var role string
	cmd := &cobra.Command{
		Use:   "add-employee",
		Short: "Register an employee with any role as the local operator",
		Long: `add-employee writes straight to the local database without an acting employee.
Use it to create the first administrator; the HTTP API only lets administrators assign roles.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadRuntime(opts, stderr)
			if err != nil {
				return err
			}
			defer env.close()
			in.Role = domain.Role(role)
			return runAddEmployee(cmd.Context(), env, in, stdout)
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.AvatarURL, "avatar-url", "", "avatar image URL")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleEmployee), "admin, hr, or employee")
	return cmd
}

func runAddEmployee(ctx context.Context, env *runtimeEnv, in domain.EmployeeInput, stdout io.Writer) error {
	repo, svc, err := env.openService()
	if err != nil {
		return err
	}
	defer repo.Close()

	employee, err := svc.ProvisionEmployee(ctx, in)
	if err != nil {
		return errors.WithHint(err, "--name is required and --role must be admin, hr, or employee")
	}
	env.logger.Info("employee provisioned", "id", employee.ID, "role", employee.Role)
	return writeJSON(stdout, employeeReport{
		ID:     employee.ID,
		Name:   employee.Name,
		Email:  employee.Email,
		Role:   string(employee.Role),
		Status: string(employee.Status),
	})
}

// statusReport describes the persisted schedule as seen from the CLI.
type statusReport struct {
	AutoAbsenceEnabled bool       `json:"auto_absence_enabled"`
	AbsenceMarkingTime string     `json:"absence_marking_time"`
	TimeZone           string     `json:"time_zone"`
	NextRunAt          *time.Time `json:"next_run_at,omitempty"`
}

func newStatusCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show attendance settings and the next scheduled run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadRuntime(opts, stderr)
			if err != nil {
				return err
			}
			defer env.close()
			return runStatus(cmd.Context(), env, time.Now, stdout)
		},
	}
}

func runStatus(ctx context.Context, env *runtimeEnv, now func() time.Time, stdout io.Writer) error {
	loc, err := env.cfg.Location()
	if err != nil {
		return err
	}
	repo, svc, err := env.openService()
	if err != nil {
		return err
	}
	defer repo.Close()

	settings, err := svc.AttendanceSettings(ctx)
	if err != nil {
		return err
	}
	report := statusReport{
		AutoAbsenceEnabled: settings.AutoAbsenceEnabled,
		AbsenceMarkingTime: settings.AbsenceMarkingTime,
		TimeZone:           loc.String(),
	}
	if settings.AutoAbsenceEnabled {
		next, err := scheduler.NextFiring(settings.AbsenceMarkingTime, now(), loc)
		if err != nil {
			return err
		}
		report.NextRunAt = &next
	}
	return writeJSON(stdout, report)
}

func newPathsCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show resolved config, env, database, and log paths",
		RunE: func(_ *cobra.Command, _ []string) error {
			env, err := loadRuntime(opts, stderr)
			if err != nil {
				return err
			}
			defer env.close()
			fmt.Fprintf(stdout, "config: %s\n", env.configPath)
			fmt.Fprintf(stdout, "env: %s\n", env.envPath)
			fmt.Fprintf(stdout, "data_dir: %s\n", env.paths.DataDir)
			fmt.Fprintf(stdout, "db: %s\n", env.cfg.Database.Path)
			if devLog := env.logger.DevLogPath(); devLog != "" {
				fmt.Fprintf(stdout, "dev_log: %s\n", devLog)
			}
			return nil
		},
	}
}

// closeInto closes c and reports its error through err unless err already holds one.
func closeInto(err *error, c io.Closer, msg string) {
	if closeErr := c.Close(); closeErr != nil && *err == nil {
		*err = errors.Wrap(closeErr, msg)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "encode output")
	}
	return nil
}

// parseBoolEnv parses a boolean env var, reporting whether it was set and valid.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
