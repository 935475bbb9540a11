package lbCoordinator

import "golang.org/x/exp/slices"

// RegistryStore is the external registry of presentation entities from
// prior runs, grouped by presentation domain.
type RegistryStore interface {
	List() (map[string][]string, error)
	Remove(domain, id string) error
}

// ClaimEntity marks an identifier as belonging to the current schema so
// RemoveOldEntities leaves it alone.
func (c *Coordinator) ClaimEntity(domain, id string) {
	c.oldMu.Lock()
	defer c.oldMu.Unlock()

	ids := c.oldEntities[domain]
	idx := slices.Index(ids, id)
	if idx != -1 {
		c.oldEntities[domain] = slices.Delete(ids, idx, idx+1)
	}
}

// RemoveOldEntities deletes every identifier of the domain still present
// in the index built at construction, i.e. entities a previous schema
// registered that nothing reclaimed. Call once per domain after its
// entities have been created; a second call is a no-op.
func (c *Coordinator) RemoveOldEntities(domain string) {
	c.oldMu.Lock()
	stale := c.oldEntities[domain]
	delete(c.oldEntities, domain)
	c.oldMu.Unlock()

	for _, id := range stale {
		if err := c.registry.Remove(domain, id); err != nil {
			c.logger.Errorw("could not remove stale entity", "domain", domain, "id", id, "error", err)
			continue
		}
		c.logger.Infow("removed stale entity", "domain", domain, "id", id)
	}
}
