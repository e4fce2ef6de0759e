package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/service/importer"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
)

const defaultTimeout = 60 * time.Second

// Утилита загружает YAML-фид партнёра напрямую в базу, минуя HTTP API.
// Удобна для первоначального наполнения каталога и для cron-импорта.
func main() {
	var (
		feedPath string
		dsn      string
	)

	flag.StringVar(&feedPath, "file", "", "path to the partner feed YAML file")
	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: MARKET_DATABASE_URL)")
	flag.Parse()

	if feedPath == "" {
		fail("-file is required")
	}
	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv("MARKET_DATABASE_URL"))
	}
	if dsn == "" {
		fail("MARKET_DATABASE_URL (or -dsn) is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	feed, err := os.Open(feedPath)
	if err != nil {
		fail("open feed file: %v", err)
	}
	defer feed.Close()

	svc := importer.NewService(store, log.WithField("component", "import-feed"))
	result, err := svc.ImportFeed(ctx, feed)
	if err != nil {
		fail("import feed: %v", err)
	}

	fmt.Printf("import ok: shop=%s (%s) categories=%d products=%d\n",
		result.ShopName, result.ShopID, result.CategoriesSeen, result.ProductsLoaded)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
