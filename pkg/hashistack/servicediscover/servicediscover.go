package servicediscover

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"advocacy-engine/pkg/config"

	"github.com/hashicorp/consul/api"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("servicediscover", fx.Invoke(registerConsul))

type ServiceRegistry interface {
	Register(ctx context.Context) error
	Deregister(ctx context.Context) error
}

type ConsulRegistry struct {
	client    *api.Client
	serviceID string
	service   *api.AgentServiceRegistration
}

func NewConsulRegistry(address, serviceName, serviceID, host string, port int) (*ConsulRegistry, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	service := &api.AgentServiceRegistration{
		ID:      serviceID,
		Name:    serviceName,
		Address: host,
		Port:    port,
		Check: &api.AgentServiceCheck{
			HTTP:     fmt.Sprintf("http://%s:%d/health/readiness", host, port),
			Interval: "10s",
			Timeout:  "5s",
		},
	}

	return &ConsulRegistry{
		client:    client,
		serviceID: serviceID,
		service:   service,
	}, nil
}

func (r *ConsulRegistry) Register(ctx context.Context) error {
	return r.client.Agent().ServiceRegister(r.service)
}

func (r *ConsulRegistry) Deregister(ctx context.Context) error {
	return r.client.Agent().ServiceDeregister(r.serviceID)
}

func registerConsul(lc fx.Lifecycle, cfg *config.Config) error {
	if cfg.Consul.Addr == "" {
		zap.L().Info("consul not configured, skipping service registration")
		return nil
	}

	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}

	port, err := strconv.Atoi(cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("service registration needs a numeric server port: %w", err)
	}

	serviceID := fmt.Sprintf("%s-%s", cfg.AppName, host)
	registry, err := NewConsulRegistry(cfg.Consul.Addr, cfg.AppName, serviceID, host, port)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := registry.Register(ctx); err != nil {
				zap.L().Error("consul registration failed", zap.Error(err))
				return err
			}
			zap.L().Info("registered with consul", zap.String("service_id", serviceID))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return registry.Deregister(ctx)
		},
	})

	return nil
}
