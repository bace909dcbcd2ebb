package proxysupervisor

import (
	"fmt"

	"github.com/gomodule/redigo/redis"
)

// purgeDedupIndex deletes the stale pending/cdxj keys this collection may
// have left in the shared Redis-backed dedup index before the proxy
// starts, treating the index purely as a cache the worker owns for its
// own collection name.
func (s *Supervisor) purgeDedupIndex() error {
	if s.opts.DedupRedisAddr == "" {
		return nil
	}

	conn, err := redis.Dial("tcp", s.opts.DedupRedisAddr)
	if err != nil {
		return fmt.Errorf("proxysupervisor: redis dial: %w", err)
	}
	defer conn.Close()

	pendingKey := fmt.Sprintf("pywb:%s:pending", s.opts.CollectionName)
	cdxjKey := fmt.Sprintf("pywb:%s:cdxj", s.opts.CollectionName)

	if _, err := conn.Do("DEL", pendingKey, cdxjKey); err != nil {
		return fmt.Errorf("proxysupervisor: redis del: %w", err)
	}

	return nil
}
