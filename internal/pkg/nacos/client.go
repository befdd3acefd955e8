// internal/pkg/nacos/client.go
package nacos

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/rs/zerolog/log"
)

// Client 封装了 Nacos 命名客户端
type Client struct {
	namingClient naming_client.INamingClient

	namespaceId string
	groupName   string
}

// NewClient 创建并返回一个新的 Nacos 客户端
// addrs 格式为 "ip1:port1,ip2:port2"
func NewClient(addrs string, namespaceId, groupName string) (*Client, error) {
	if namespaceId == "" {
		log.Printf("WARNING: nacos namespace is not set, using default public namespace")
	}
	if groupName == "" {
		groupName = "DEFAULT_GROUP" // Nacos 默认分组
	}

	var serverConfigs []constant.ServerConfig
	for _, addr := range strings.Split(addrs, ",") {
		parts := strings.Split(addr, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid nacos address format: %s", addr)
		}
		port, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid port in nacos address: %s", parts[1])
		}
		serverConfigs = append(serverConfigs, *constant.NewServerConfig(parts[0], port))
	}

	clientConfig := *constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir("/tmp/nacos/log"),
		constant.WithCacheDir("/tmp/nacos/cache"),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(namespaceId),
	)

	namingClient, err := clients.NewNamingClient(
		vo.NacosClientParam{
			ClientConfig:  &clientConfig,
			ServerConfigs: serverConfigs,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create nacos naming client: %w", err)
	}

	log.Printf("Connected to Nacos at %s", addrs)
	return &Client{
		namingClient: namingClient,
		namespaceId:  namespaceId,
		groupName:    groupName,
	}, nil
}

// RegisterServiceInstance 注册一个服务实例到 Nacos
func (c *Client) RegisterServiceInstance(serviceName, ip string, port int) error {
	success, err := c.namingClient.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Weight:      10,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true, // 临时节点，心跳断开后自动摘除
		GroupName:   c.groupName,
	})
	if err != nil {
		return fmt.Errorf("failed to register service with nacos: %w", err)
	}
	if !success {
		return fmt.Errorf("nacos registration was not successful for service: %s", serviceName)
	}
	log.Printf("Service '%s' registered to Nacos (%s:%d)", serviceName, ip, port)
	return nil
}

// DeregisterServiceInstance 从 Nacos 注销一个服务实例
func (c *Client) DeregisterServiceInstance(serviceName, ip string, port int) error {
	_, err := c.namingClient.DeregisterInstance(vo.DeregisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return fmt.Errorf("failed to deregister service with nacos: %w", err)
	}
	log.Printf("Service '%s' deregistered from Nacos (%s:%d)", serviceName, ip, port)
	return nil
}
