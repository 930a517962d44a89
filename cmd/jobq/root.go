package main

import (
	"fmt"

	"github.com/UniQw/jobq"
	"github.com/UniQw/jobq/internal/config"
	"github.com/UniQw/jobq/internal/logging"
	"github.com/UniQw/jobq/sqlitestore"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds state shared by all subcommands. The store is opened lazily so
// that config commands work without a reachable backend.
type app struct {
	cfgPath string
	jsonOut bool

	cfg    *config.Config
	zlog   *zap.Logger
	log    jobq.Logger
	store  jobq.Store
	closer func() error
	enc    jobq.Encoder
}

func newRootCmd() *cobra.Command {
	a := &app{enc: &jobq.JSONEncoder{}}
	root := &cobra.Command{
		Use:           "jobq",
		Short:         "A persistent background job queue for shell commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (default <user config dir>/jobq/config.yaml)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print machine readable JSON")

	root.AddCommand(
		enqueueCmd(a),
		listCmd(a),
		statusCmd(a),
		workerCmd(a),
		dlqCmd(a),
		configCmd(a),
		serveCmd(a),
		tokenCmd(a),
	)
	return root
}

func (a *app) init() error {
	if a.cfgPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		a.cfgPath = p
	}
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg

	zl, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	a.zlog = zl
	a.log = jobq.NewZapLogger(zl)
	return nil
}

func (a *app) openStore() (jobq.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	switch a.cfg.Store.Driver {
	case config.DriverSQLite:
		s, err := sqlitestore.Open(a.cfg.Store.SQLite.Path)
		if err != nil {
			return nil, err
		}
		a.store, a.closer = s, s.Close
	default:
		rc := a.cfg.Store.Redis
		rdb := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		a.store, a.closer = jobq.NewRedisStore(rdb, rc.Namespace), rdb.Close
	}
	return a.store, nil
}

func (a *app) client() (*jobq.Client, error) {
	s, err := a.openStore()
	if err != nil {
		return nil, err
	}
	return jobq.NewClient(s, jobq.ClientConfig{DefaultMaxRetries: a.cfg.Queue.MaxRetries}), nil
}

func (a *app) close() error {
	if a.zlog != nil {
		_ = a.zlog.Sync()
	}
	if a.closer == nil {
		return nil
	}
	err := a.closer()
	a.closer, a.store = nil, nil
	return err
}

func (a *app) printJSON(cmd *cobra.Command, v any) error {
	data, err := a.enc.Encode(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
