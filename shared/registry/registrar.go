package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ftotnem/POINTS-LEDGER/shared/config"
	"github.com/Ftotnem/POINTS-LEDGER/shared/logger"
)

// ServiceRegistrar handles the self-registration and heartbeating of a service instance.
type ServiceRegistrar struct {
	redisClient redis.UniversalClient
	serviceType string
	version     string
	cfg         *config.CommonConfig
	log         *logger.Logger
	serviceID   string
	stopChan    chan struct{}
	doneChan    chan struct{}
}

// NewServiceRegistrar creates a new ServiceRegistrar with a fresh instance id.
func NewServiceRegistrar(redisClient redis.UniversalClient, serviceType, version string, cfg *config.CommonConfig, log *logger.Logger) *ServiceRegistrar {
	serviceID := fmt.Sprintf("%s-%s", serviceType, uuid.New().String())
	return &ServiceRegistrar{
		redisClient: redisClient,
		serviceType: serviceType,
		version:     version,
		cfg:         cfg,
		log:         log.WithFields(map[string]interface{}{"component": "registrar", "service_id": serviceID}),
		serviceID:   serviceID,
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
}

// Start begins the service registration and heartbeating process in a goroutine.
func (sr *ServiceRegistrar) Start() {
	sr.log.Infof("Starting service registrar at %s:%d", sr.cfg.ServiceIP, sr.cfg.ServicePort)
	go sr.run()
}

// Stop signals the registrar to stop and removes this instance from the registry.
func (sr *ServiceRegistrar) Stop() {
	close(sr.stopChan)
	<-sr.doneChan

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sr.redisClient.HDel(ctx, hashKey(sr.serviceType), sr.serviceID).Err(); err != nil {
		sr.log.WithError(err).Error("Failed to remove instance from registry on shutdown")
		return
	}
	sr.log.Info("Instance removed from registry")
}

func (sr *ServiceRegistrar) run() {
	defer close(sr.doneChan)

	ticker := time.NewTicker(sr.cfg.HeartbeatInterval)
	defer ticker.Stop()

	sr.heartbeat()
	for {
		select {
		case <-ticker.C:
			sr.heartbeat()
			sr.sweepStale()
		case <-sr.stopChan:
			return
		}
	}
}

func (sr *ServiceRegistrar) heartbeat() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	info := ServiceInfo{
		ServiceID:   sr.serviceID,
		ServiceType: sr.serviceType,
		IP:          sr.cfg.ServiceIP,
		Port:        sr.cfg.ServicePort,
		LastSeen:    time.Now().UnixMilli(),
		Metadata:    map[string]string{"version": sr.version},
	}
	infoJSON, err := json.Marshal(info)
	if err != nil {
		sr.log.WithError(err).Error("Failed to marshal service info")
		return
	}
	if err := sr.redisClient.HSet(ctx, hashKey(sr.serviceType), sr.serviceID, infoJSON).Err(); err != nil {
		sr.log.WithError(err).Warn("Heartbeat failed")
		return
	}
	sr.log.Debug("Heartbeat sent")
}

// sweepStale removes entries whose last heartbeat is older than HeartbeatTTL, and entries that no longer decode.
func (sr *ServiceRegistrar) sweepStale() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := hashKey(sr.serviceType)
	results, err := sr.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		sr.log.WithError(err).Warn("Registry sweep could not read instances")
		return
	}

	for instanceID, infoJSON := range results {
		var info ServiceInfo
		stale := json.Unmarshal([]byte(infoJSON), &info) != nil || isStale(info, time.Now(), sr.cfg.HeartbeatTTL)
		if !stale {
			continue
		}
		if err := sr.redisClient.HDel(ctx, key, instanceID).Err(); err != nil {
			sr.log.WithError(err).Warnf("Failed to remove stale instance %s", instanceID)
			continue
		}
		sr.log.Infof("Removed stale instance %s from registry", instanceID)
	}
}

func isStale(info ServiceInfo, now time.Time, ttl time.Duration) bool {
	return now.Sub(time.UnixMilli(info.LastSeen)) > ttl
}

// GetServiceID returns the unique ID assigned to this service instance.
func (sr *ServiceRegistrar) GetServiceID() string {
	return sr.serviceID
}
