package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"mini-pos/internal/common/config"
	"mini-pos/internal/common/logger"
	"mini-pos/internal/microservices/gateway"
	"mini-pos/internal/microservices/menu"
	"mini-pos/internal/microservices/order"
	"mini-pos/internal/microservices/table"
)

func main() {
	mode := flag.String("mode", "", "order-service | table-service | menu-service | gateway | seed")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		lg  *logger.Logger
		err error
	)
	switch *mode {
	case "order-service":
		lg = logger.New("order-service")
		err = order.Run(ctx, cfg, lg)
	case "table-service":
		lg = logger.New("table-service")
		err = table.Run(ctx, cfg, lg)
	case "menu-service":
		lg = logger.New("menu-service")
		err = menu.Run(ctx, cfg, lg)
	case "gateway":
		lg = logger.New("gateway")
		err = gateway.Run(ctx, cfg, lg)
	case "seed":
		lg = logger.New("seed")
		err = seed(ctx, cfg, lg)
	default:
		fmt.Fprintln(os.Stderr, "--mode is required: order-service | table-service | menu-service | gateway | seed")
		os.Exit(2)
	}
	if err != nil {
		lg.Error("fatal", err, nil)
		os.Exit(1)
	}
}
