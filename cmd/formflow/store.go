package main

import (
	"fmt"

	"github.com/tjfontaine/formflow/internal/config"
	"github.com/tjfontaine/formflow/internal/taskstore"
	"github.com/tjfontaine/formflow/internal/taskstore/memory"
	"github.com/tjfontaine/formflow/internal/taskstore/redisstore"
	"github.com/tjfontaine/formflow/internal/taskstore/sqlstore"
)

func openTaskStore(cfg config.TasksConfig) (taskstore.Store, error) {
	switch cfg.Store {
	case "memory":
		return memory.New(), nil
	case "sqlite", "postgres":
		return sqlstore.New(sqlstore.Config{Driver: cfg.Store, DSN: cfg.DSN})
	case "redis":
		return redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), nil
	default:
		return nil, fmt.Errorf("unknown task store %q", cfg.Store)
	}
}
