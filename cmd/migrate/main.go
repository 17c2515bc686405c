/*
Copyright 2026 The LidarCtl Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command migrate runs the catalog database's goose migrations
// (pkg/catalog/migrations) up or down against PG_DSN.
package main

import (
	"flag"
	"os"

	"github.com/pressly/goose/v3"

	"github.com/lidarctl/controlplane/internal/database"
	"github.com/lidarctl/controlplane/pkg/log"
)

func main() {
	var (
		direction = flag.String("direction", "up", "migration direction: up, down, status")
		dir       = flag.String("dir", "pkg/catalog/migrations", "directory containing the goose migration files")
		dev       = flag.Bool("dev", false, "enable human-readable development logging")
	)
	flag.Parse()

	opts := log.DefaultOptions()
	if *dev {
		opts = log.DevelopmentOptions()
	}
	logger := log.NewLogger(opts)
	defer log.Sync(logger)

	cfg := database.DefaultConfig()
	cfg.LoadFromEnv()

	db, err := database.Connect(cfg, logger)
	if err != nil {
		logger.Error(err, "connect to catalog database")
		os.Exit(1)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		logger.Error(err, "set goose dialect")
		os.Exit(1)
	}

	switch *direction {
	case "up":
		err = goose.Up(db.DB, *dir)
	case "down":
		err = goose.Down(db.DB, *dir)
	case "status":
		err = goose.Status(db.DB, *dir)
	default:
		logger.Info("unknown migration direction, expected up/down/status", "direction", *direction)
		os.Exit(2)
	}

	if err != nil {
		logger.Error(err, "run migration", "direction", *direction)
		os.Exit(1)
	}
	logger.Info("migration complete", "direction", *direction)
}
