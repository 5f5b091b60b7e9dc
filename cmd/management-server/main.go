package main

import (
	"fmt"
	"os"
	"time"

	"critter-coliseum/internal/modules/management"
	"critter-coliseum/internal/pkg/config"
	"critter-coliseum/internal/pkg/log"

	"github.com/liangdas/mqant"
	"github.com/liangdas/mqant/module"
	"github.com/liangdas/mqant/registry"
	"github.com/liangdas/mqant/registry/consul"
	"github.com/nats-io/nats.go"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  Critter Coliseum Management Server")
	fmt.Println("  Version: 1.0.0")
	fmt.Println("==============================================")
	fmt.Println()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("[Main] %v\n", err)
	}
	log.Init(log.ParseLevel(os.Getenv("LOG_LEVEL")), config.GetEnvOrDefault("ENVIRONMENT", "development"))

	consulAddr := config.GetEnvOrDefault("CONSUL_ADDRESS", "localhost:8500")
	fmt.Printf("[Main] Consul address: %s\n", consulAddr)

	natsAddr := config.GetEnvOrDefault("NATS_ADDRESS", "localhost:4222")
	fmt.Printf("[Main] NATS address: %s\n", natsAddr)

	// mqant RPC 传输使用的连接，任务队列在模块内单独建立连接
	nc, err := nats.Connect("nats://"+natsAddr,
		nats.MaxReconnects(10),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		fmt.Printf("[Main] Failed to connect to NATS: %v\n", err)
		return
	}
	fmt.Println("[Main] Connected to NATS successfully")

	rs := consul.NewRegistry(func(options *registry.Options) {
		options.Addrs = []string{consulAddr}
	})

	// RegisterTTL 和 RegisterInterval 在模块的 OnInit 中配置
	app := mqant.CreateApp(
		module.Configure(config.GetEnvOrDefault("MANAGEMENT_CONFIG", "./configs/server/management.json")),
		module.Debug(false),
		module.Nats(nc),
		module.Registry(rs),
	)

	fmt.Println("[Main] Configuration loaded")

	app.Run(
		management.Module(),
	)
}
