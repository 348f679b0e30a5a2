package order

import (
	"context"
	"fmt"

	"mini-pos/internal/common/bus"
	"mini-pos/internal/common/config"
	"mini-pos/internal/common/db"
	"mini-pos/internal/common/httpx"
	"mini-pos/internal/common/logger"
	"mini-pos/internal/common/redisx"
	"mini-pos/internal/microservices/order/handlers"
	"mini-pos/internal/microservices/order/repository"
	"mini-pos/internal/microservices/order/service"
)

// Run wires the order service and blocks until ctx is canceled.
func Run(ctx context.Context, cfg config.Config, lg *logger.Logger) error {
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	b := bus.New(cfg.RabbitURL, lg)
	repo := repository.NewOrderRepository(pool)
	svc := service.NewOrderService(repo, b, redisx.NewStatusCache(rdb), lg)

	b.Subscribe(service.QueueName, service.RoutingKeys, svc.HandleEvent)
	go func() { _ = b.Run(ctx) }()

	router := httpx.NewRouter("order")
	handlers.NewOrderHandler(svc).Register(router)

	lg.Info("service_started", map[string]any{"port": cfg.OrderPort})
	return httpx.New(fmt.Sprintf(":%d", cfg.OrderPort), router).Run(ctx)
}
