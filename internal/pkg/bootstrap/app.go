// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"kamishop/internal/pkg/nacos"
)

// AppInfo 包含了启动服务所需的所有特定信息。
type AppInfo struct {
	ServiceName string
	Port        int
	Mux         *http.ServeMux
	Nacos       *nacos.Client // 可以为 nil，此时跳过服务注册

	// OnShutdown 在收到退出信号后按注册顺序执行（停 worker、关 kafka、刷 trace 等）
	OnShutdown []func(ctx context.Context)
}

// Run 封装了通用的启动和优雅关停逻辑，阻塞直到进程退出。
func Run(info AppInfo) error {
	var ip string
	if info.Nacos != nil {
		var err error
		ip, err = getOutboundIP()
		if err != nil {
			return err
		}
		if err := info.Nacos.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			return err
		}
	}

	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: info.Mux}
	go func() {
		log.Printf("%s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// 阻塞主 goroutine，直到接收到退出信号
	<-quit
	log.Printf("Shutting down service %s...", info.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 清理操作按后进先出的思路由调用方编排
	if info.Nacos != nil {
		if err := info.Nacos.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			log.Printf("Error deregistering from Nacos: %v", err)
		}
	}

	for _, hook := range info.OnShutdown {
		hook(ctx)
	}

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down http server: %v", err)
	} else {
		log.Printf("HTTP server shut down.")
	}

	log.Printf("Service %s gracefully shut down.", info.ServiceName)
	return nil
}

// getOutboundIP 获取本机对外 IP，用于向注册中心上报实例地址。
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}
