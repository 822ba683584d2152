// shared/cluster/assignment_manager.go
package cluster

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/stathat/consistent"

	"github.com/Ftotnem/POINTS-LEDGER/shared/logger"
	"github.com/Ftotnem/POINTS-LEDGER/shared/registry"
)

// MemberSource lists the live instances of a service type.
type MemberSource interface {
	ActiveInstances(ctx context.Context, serviceType string) ([]registry.ServiceInfo, error)
}

// AssignmentManager decides which instance owns a task key by consistent hashing
// over the live instances of its service type.
type AssignmentManager struct {
	source         MemberSource
	serviceType    string
	selfID         string
	updateInterval time.Duration
	log            *logger.Logger

	mu   sync.RWMutex
	ring *consistent.Consistent

	ctx    context.Context
	cancel context.CancelFunc
}

// NewAssignmentManager creates a manager whose ring initially holds only this instance.
func NewAssignmentManager(source MemberSource, serviceType, selfID string, updateInterval time.Duration, log *logger.Logger) *AssignmentManager {
	ctx, cancel := context.WithCancel(context.Background())

	ring := consistent.New()
	ring.Add(selfID)

	return &AssignmentManager{
		source:         source,
		serviceType:    serviceType,
		selfID:         selfID,
		updateInterval: updateInterval,
		log:            log.WithField("component", "assignment"),
		ring:           ring,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start refreshes the ring every update interval until Stop. Run it in a goroutine.
func (am *AssignmentManager) Start() {
	ticker := time.NewTicker(am.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-am.ctx.Done():
			return
		case <-ticker.C:
			if err := am.Refresh(am.ctx); err != nil {
				am.log.WithError(err).Warn("Could not refresh assignment ring")
			}
		}
	}
}

func (am *AssignmentManager) Stop() {
	am.cancel()
}

// Refresh rebuilds the ring when the set of live instances changed.
// This instance always stays a member so it can make progress while the registry is empty.
func (am *AssignmentManager) Refresh(ctx context.Context) error {
	instances, err := am.source.ActiveInstances(ctx, am.serviceType)
	if err != nil {
		return fmt.Errorf("failed to list %s instances: %w", am.serviceType, err)
	}

	members := []string{am.selfID}
	for _, inst := range instances {
		if inst.ServiceID != am.selfID {
			members = append(members, inst.ServiceID)
		}
	}
	slices.Sort(members)

	am.mu.Lock()
	defer am.mu.Unlock()

	current := am.ring.Members()
	slices.Sort(current)
	if slices.Equal(members, current) {
		return nil
	}

	ring := consistent.New()
	ring.Set(members)
	am.ring = ring
	am.log.Infof("Assignment ring updated, members: %v", members)
	return nil
}

// IsResponsible reports whether this instance owns taskKey.
func (am *AssignmentManager) IsResponsible(taskKey string) (bool, error) {
	am.mu.RLock()
	defer am.mu.RUnlock()

	owner, err := am.ring.Get(taskKey)
	if err != nil {
		return false, fmt.Errorf("failed to resolve owner of %q: %w", taskKey, err)
	}
	return owner == am.selfID, nil
}
