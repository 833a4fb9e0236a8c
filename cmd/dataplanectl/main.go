// Command dataplanectl wires the full pipeline together: it loads config
// and entity schemas, picks a storage driver, builds the middleware chain,
// optionally seeds mock data, and runs the operation given on the command
// line, printing the resulting envelope as JSON.
//
// Usage:
//
//	dataplanectl <entity> <op> [key=value ...]
//	dataplanectl orders findMany status=paid limit=10
//	dataplanectl orders findOne id=ord_1 include=customer
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"dataplane-backend/internal/cache"
	"dataplane-backend/internal/config"
	"dataplane-backend/internal/metadata"
	"dataplane-backend/internal/middleware"
	"dataplane-backend/internal/pipeline"
	"dataplane-backend/internal/resolver"
	"dataplane-backend/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Set up logging
	setupLogger(cfg.Logging)

	// 3. Create registry and load entity schemas
	reg := metadata.NewRegistry()
	if err := metadata.LoadDir(cfg.Schema.Dir, reg); err != nil {
		log.Warn().Err(err).Msg("schema load failed, starting with empty registry")
	}

	// 4. Pick a storage driver
	driver, closeDriver, err := openDriver(ctx, cfg.Database, reg)
	if err != nil {
		log.Fatal().Err(err).Msg("open storage driver")
	}
	defer closeDriver()

	// 5. Seed mock data
	if cfg.Seed.Enabled {
		if err := driver.Seed(ctx, cfg.Seed.Counts, reg); err != nil {
			log.Fatal().Err(err).Msg("seed")
		}
		log.Info().Interface("counts", cfg.Seed.Counts).Msg("seeded")
	}

	// 6. Build the middleware chain
	chain := buildChain(cfg)

	// 7. Resolve the requested operation
	rc, err := parseRequest(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	crud := resolver.NewCRUD(driver, reg)
	resp, err := pipeline.Run(ctx, chain, rc, crud.Terminal())
	if err != nil {
		log.Fatal().Err(err).Msg("operation failed")
	}
	if resp.Err != nil {
		log.Fatal().Err(resp.Err).Msg("operation returned error envelope")
	}

	out, _ := json.MarshalIndent(map[string]any{
		"data": resp.Data,
		"meta": resp.Meta,
	}, "", "  ")
	fmt.Println(string(out))
}

func setupLogger(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func openDriver(ctx context.Context, cfg config.DatabaseConfig, reg *metadata.Registry) (store.Driver, func(), error) {
	if cfg.IsMemory() {
		return store.NewMemory(reg), func() {}, nil
	}

	driverName := "pgx"
	if cfg.IsSQLite() {
		driverName = "sqlite"
	}
	db, err := store.Open(ctx, driverName, cfg.DSN(), reg)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = db.Close() }, nil
}

func buildChain(cfg *config.Config) *pipeline.Chain {
	var stages []pipeline.Middleware

	stages = append(stages, &middleware.Logger{
		Log:         log.Logger,
		LogPayloads: cfg.Logging.LogPayloads,
	})

	if cfg.Auth.Enabled {
		stages = append(stages, &middleware.Claims{ContextPrefix: cfg.Auth.ContextPrefix})
	}

	if cfg.Cache.Enabled {
		stages = append(stages, &middleware.Cache{
			Store: cache.New(cfg.Cache.Capacity),
			TTL:   cfg.Cache.TTL,
		})
	}

	if cfg.Retry.Enabled {
		stages = append(stages, &middleware.Retry{
			Max:      cfg.Retry.Max,
			Base:     cfg.Retry.Base,
			MaxDelay: cfg.Retry.MaxDelay,
		})
	}

	stages = append(stages, middleware.NewMetrics(prometheus.DefaultRegisterer))

	return pipeline.NewChain(stages...)
}

// parseRequest turns "entity op key=value ..." into a request context.
// Recognized keys: limit, offset, sort (field or -field), include
// (comma-separated), id; everything else becomes a filter condition.
func parseRequest(args []string) (*pipeline.RequestContext, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("usage: dataplanectl <entity> <op> [key=value ...]")
	}

	rc := pipeline.NewRequestContext(args[0], pipeline.OpKind(args[1]))
	for _, arg := range args[2:] {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("malformed argument %q, want key=value", arg)
		}
		switch key {
		case "limit":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("limit: %w", err)
			}
			rc.Page.Limit = n
		case "offset":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("offset: %w", err)
			}
			rc.Page.Offset = n
		case "sort":
			for _, field := range strings.Split(value, ",") {
				desc := strings.HasPrefix(field, "-")
				rc.Sorts = append(rc.Sorts, pipeline.Order{
					Field: strings.TrimPrefix(field, "-"),
					Desc:  desc,
				})
			}
		case "include":
			rc.Includes = append(rc.Includes, strings.Split(value, ",")...)
		case "id":
			rc.Params["id"] = value
		default:
			rc.Filter[key] = value
		}
	}

	if rc.Op.IsWrite() {
		// Writes read the payload as JSON from stdin.
		payload := make(map[string]any)
		dec := json.NewDecoder(os.Stdin)
		if err := dec.Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode payload from stdin: %w", err)
		}
		rc.Payload = payload
	}
	return rc, nil
}
