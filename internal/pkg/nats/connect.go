package nats

import (
	"fmt"
	"strings"
	"time"

	"critter-coliseum/internal/pkg/log"

	"github.com/nats-io/nats.go"
)

// Connect 连接 NATS，address 可以带或不带 nats:// 前缀
func Connect(address, name string, logger log.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = log.GetLogger()
	}
	url := address
	if !strings.Contains(url, "://") {
		url = "nats://" + url
	}

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(10),
		nats.ReconnectWait(1*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS 连接断开", log.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS 重连成功", log.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}
