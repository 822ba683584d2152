package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RegistryClient reads the instances other services have registered.
type RegistryClient struct {
	redisClient    redis.UniversalClient
	serviceTimeout time.Duration
}

func NewRegistryClient(redisClient redis.UniversalClient, serviceTimeout time.Duration) *RegistryClient {
	return &RegistryClient{
		redisClient:    redisClient,
		serviceTimeout: serviceTimeout,
	}
}

// ActiveInstances returns instances of serviceType that heartbeated within the service timeout, ordered by id.
func (rc *RegistryClient) ActiveInstances(ctx context.Context, serviceType string) ([]ServiceInfo, error) {
	results, err := rc.redisClient.HGetAll(ctx, hashKey(serviceType)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s instances: %w", serviceType, err)
	}
	return activeFrom(results, time.Now(), rc.serviceTimeout), nil
}

func activeFrom(raw map[string]string, now time.Time, timeout time.Duration) []ServiceInfo {
	active := make([]ServiceInfo, 0, len(raw))
	for _, infoJSON := range raw {
		var info ServiceInfo
		if err := json.Unmarshal([]byte(infoJSON), &info); err != nil {
			continue // swept by the registrar
		}
		if !isStale(info, now, timeout) {
			active = append(active, info)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ServiceID < active[j].ServiceID })
	return active
}
