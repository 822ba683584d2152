// shared/registry/types.go
package registry

import (
	"fmt"

	sharedredis "github.com/Ftotnem/POINTS-LEDGER/shared/redis"
)

// ServiceInfo represents the details of a registered service instance.
// This information is stored in Redis and used for service discovery.
type ServiceInfo struct {
	ServiceID   string            `json:"serviceId"`
	ServiceType string            `json:"serviceType"` // e.g. "ledger-service"
	IP          string            `json:"ip"`
	Port        int               `json:"port"`
	LastSeen    int64             `json:"last_seen"` // unix milliseconds
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func hashKey(serviceType string) string {
	return fmt.Sprintf("%s%s", sharedredis.RegistryHashPrefix, serviceType)
}
