package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"mini-pos/internal/common/config"
	"mini-pos/internal/common/httpx"
	"mini-pos/internal/common/logger"
)

// Run starts the API gateway: a single entry point that forwards each
// resource prefix to the service owning it.
func Run(ctx context.Context, cfg config.Config, lg *logger.Logger) error {
	router := httpx.NewRouter("gateway")

	routes := map[string]string{
		"/orders": cfg.OrderURL,
		"/tables": cfg.TableURL,
		"/menus":  cfg.MenuURL,
	}
	for prefix, target := range routes {
		proxy, err := newProxy(target, lg)
		if err != nil {
			return fmt.Errorf("gateway route %s: %w", prefix, err)
		}
		router.Mount(prefix, proxy)
	}

	lg.Info("service_started", map[string]any{"port": cfg.GatewayPort})
	return httpx.New(fmt.Sprintf(":%d", cfg.GatewayPort), router).Run(ctx)
}

func newProxy(target string, lg *logger.Logger) (http.Handler, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		lg.Error("upstream_unreachable", err, map[string]any{"target": target, "path": r.URL.Path})
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "Service temporarily unavailable"})
	}
	return proxy, nil
}
