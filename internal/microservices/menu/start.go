package menu

import (
	"context"
	"fmt"

	"mini-pos/internal/common/bus"
	"mini-pos/internal/common/config"
	"mini-pos/internal/common/db"
	"mini-pos/internal/common/httpx"
	"mini-pos/internal/common/logger"
	"mini-pos/internal/common/redisx"
	"mini-pos/internal/microservices/menu/handlers"
	"mini-pos/internal/microservices/menu/repository"
	"mini-pos/internal/microservices/menu/service"
)

// Run wires the menu service and blocks until ctx is canceled.
func Run(ctx context.Context, cfg config.Config, lg *logger.Logger) error {
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	b := bus.New(cfg.RabbitURL, lg)
	repo := repository.NewMenuRepository(pool)
	svc := service.NewMenuService(repo, b, redisx.NewDedup(rdb, "menu"), lg)

	b.Subscribe(service.QueueName, service.RoutingKeys, svc.HandleEvent)
	go func() { _ = b.Run(ctx) }()

	router := httpx.NewRouter("menu")
	handlers.NewMenuHandler(svc).Register(router)

	lg.Info("service_started", map[string]any{"port": cfg.MenuPort})
	return httpx.New(fmt.Sprintf(":%d", cfg.MenuPort), router).Run(ctx)
}
