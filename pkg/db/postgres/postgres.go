package postgres

import (
	"context"

	"github.com/exaring/otelpgx"
	pgxuuid "github.com/jackc/pgx-gofrs-uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stewardlog/incident-service-go/log"
)

type PoolConfigOption func(cfg *pgxpool.Config)

// WithTracer logs every query on the given level.
func WithTracer(logger *log.Logger, level log.Level) PoolConfigOption {
	return func(cfg *pgxpool.Config) {
		cfg.ConnConfig.Tracer = &queryTracer{log: logger, level: level}
	}
}

// WithOtlpTracer traces queries via the configured OTEL provider.
func WithOtlpTracer() PoolConfigOption {
	return func(cfg *pgxpool.Config) {
		cfg.ConnConfig.Tracer = otelpgx.NewTracer()
	}
}

func InitWithURL(url string, opts ...PoolConfigOption) *pgxpool.Pool {
	dbConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		log.Fatal("unable to parse database config", log.ErrorField(err))
	}

	dbConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxuuid.Register(conn.TypeMap())
		return nil
	}
	for _, opt := range opts {
		opt(dbConfig)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), dbConfig)
	if err != nil {
		log.Fatal("unable to create the database pool", log.ErrorField(err))
	}
	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal("unable to get a valid database connection", log.ErrorField(err))
	}
	return pool
}

type queryTracer struct {
	log   *log.Logger
	level log.Level
}

//nolint:whitespace // can't make both editor and linter happy
func (tracer *queryTracer) TraceQueryStart(
	ctx context.Context,
	_ *pgx.Conn,
	data pgx.TraceQueryStartData,
) context.Context {
	if tracer.level == log.DebugLevel {
		tracer.log.Debug("executing",
			log.String("sql", data.SQL), log.Any("args", data.Args))
	}
	return ctx
}

//nolint:whitespace // can't make the linters happy
func (tracer *queryTracer) TraceQueryEnd(
	ctx context.Context,
	conn *pgx.Conn,
	data pgx.TraceQueryEndData,
) {
}
