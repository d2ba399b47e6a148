package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"rail-connection-check/internal/config"
	"rail-connection-check/internal/db"
	"rail-connection-check/internal/feed"
	"rail-connection-check/internal/metrics"
	"rail-connection-check/internal/publisher"
	"rail-connection-check/internal/rail"
)

// openStore creates the database if needed, connects and applies the schema.
func openStore(ctx context.Context, cfg *config.Config) (*sql.DB, *db.Store, error) {
	if err := rail.SetDefaultZone(cfg.DefaultTZ); err != nil {
		return nil, nil, err
	}
	if name := db.DBName(cfg.DatabaseURL); name != "" && name != "postgres" {
		if err := db.EnsureDatabase(ctx, cfg.DatabaseURL, name); err != nil {
			// Not fatal; the ping below reports a missing database.
			log.Printf("ensure database %q: %v", name, err)
		}
	}
	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("db ping: %w", err)
	}
	if err := db.EnsureSchema(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	return sqlDB, db.NewStore(sqlDB), nil
}

// newSource reads a saved document when a file is given, else the live feed.
func newSource(cfg *config.Config, file string) feed.Source {
	if file == "" {
		file = cfg.FeedFile
	}
	if file != "" {
		log.Printf("reading feed from %s", file)
		return feed.FileSource{Path: file}
	}
	return feed.NewHTTPSource(cfg.FeedURL, 30*time.Second, 2*time.Minute)
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.NATSPublishLatency.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
