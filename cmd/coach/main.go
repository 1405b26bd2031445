package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"dealer_coach_backend/internal/coaching"
	"dealer_coach_backend/internal/coaching/approval"
	"dealer_coach_backend/internal/coaching/dispatch"
	"dealer_coach_backend/internal/coaching/pipeline"
	"dealer_coach_backend/internal/coaching/repository"
	"dealer_coach_backend/internal/coaching/seed"
	"dealer_coach_backend/internal/coaching/service"
	"dealer_coach_backend/internal/events"
	"dealer_coach_backend/platform/ai/moonshot"
	"dealer_coach_backend/platform/config"
	"dealer_coach_backend/platform/db"
	"dealer_coach_backend/platform/logger"
	"dealer_coach_backend/platform/validator"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/adk/model"
)

var rootCmd = &cobra.Command{
	Use:   "coach",
	Short: "Dealer coaching console",
	Long: `coach runs the dealer coaching pipeline from a terminal.

Without DATABASE_URL the console works on synthetic activity for six dealers,
so preview, champions and run can be tried locally. seed and snapshot need a
database and Redis respectively.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load()
	if file := viper.GetString("config"); file != "" {
		viper.SetConfigFile(file)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintln(os.Stderr, "error: read config:", err)
			os.Exit(1)
		}
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML file with configuration keys (database-url, llm-api-key, ...)")
	flags.String("database-url", "", "Postgres connection string")
	flags.String("operator", "console", "operator id owning review sessions")
	flags.Bool("json", false, "output JSON")
	flags.Bool("verbose", false, "log debug output")
	for _, name := range []string{"config", "database-url", "operator", "json", "verbose"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(
		runCmd(),
		previewCmd(),
		championsCmd(),
		seedCmd(),
		snapshotCmd(),
	)
}

// loadConfig resolves every configuration key through viper first, so flags
// and the YAML file override the environment.
func loadConfig() (*config.Config, error) {
	return config.LoadFrom(func(key string) (string, bool) {
		name := strings.ToLower(strings.ReplaceAll(key, "_", "-"))
		if viper.IsSet(name) {
			if v := viper.GetString(name); v != "" {
				return v, true
			}
		}
		return os.LookupEnv(key)
	})
}

func newLogger(cfg *config.Config) *logger.Logger {
	if viper.GetBool("verbose") {
		return logger.New(cfg.Env)
	}
	return logger.Discard()
}

// runtime is the wired coaching stack for one command.
type runtime struct {
	cfg  *config.Config
	log  *logger.Logger
	svc  *service.Service
	repo *repository.Repository
	bus  *events.InMemoryBus
}

func withRuntime(ctx context.Context, fn func(context.Context, *runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	rt := &runtime{cfg: cfg, log: log, bus: events.NewInMemoryBus(log)}
	defer rt.bus.Wait()

	deps := coaching.ModuleDeps{
		Sessions:  approval.NewMemoryStore(),
		Bus:       rt.bus,
		Validator: validator.New(),
		Config:    cfg,
		Log:       log,
	}

	if cfg.DatabaseURL != "" {
		if err := db.RunMigrations(ctx, cfg); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		rt.repo = repository.New(pool)
		deps.Repository = rt.repo
	} else {
		deps.Source = pipeline.StaticSource{seed.Batch(seed.Generate(seed.Options{}))}
		fmt.Fprintln(os.Stderr, "no database configured; using synthetic activity")
	}

	if cfg.IsLLMEnabled() {
		var llm model.LLM = moonshot.NewModel(moonshot.Config{
			APIKey:  cfg.GetLLMAPIKey(),
			BaseURL: cfg.GetLLMBaseURL(),
			Model:   cfg.GetLLMModel(),
			Timeout: cfg.GetLLMTimeout(),
		})
		deps.Model = llm
	}
	if cfg.GetReviewsBaseURL() != "" {
		deps.Dispatcher = dispatch.NewReviewClient(cfg.GetReviewsBaseURL(), cfg.GetDispatchTimeout())
	}

	module, err := coaching.NewModule(deps)
	if err != nil {
		return err
	}
	rt.svc = module.Service()
	return fn(ctx, rt)
}

func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
