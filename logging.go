package atmcache

import (
	"errors"

	logger "github.com/harwoeck/liblog/contract"
)

func (c *Cache) logProducerFailure(key string, err error) {
	if c.log == nil {
		return
	}
	if errors.Is(err, ErrProducerPanic) {
		c.log.Warn("producer panicked",
			logger.NewField("key", key),
			logger.NewField("error", err))
		return
	}
	c.log.Warn("producer failed",
		logger.NewField("key", key),
		logger.NewField("error", err))
}

func (c *Cache) logRemoval(op Op, key string) {
	if c.log == nil {
		return
	}
	switch op {
	case OpEvict:
		c.log.Debug("evicted entry at capacity",
			logger.NewField("key", key),
			logger.NewField("max_entries", c.cfg.MaxEntries))
	case OpExpire:
		c.log.Debug("swept entry past stale retention",
			logger.NewField("key", key))
	}
}
