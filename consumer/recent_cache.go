package consumer

import (
	"container/list"

	"github.com/stanlemon/storm-dynamic-spout/message"
)

// recentCache remembers the last N emitted messages by id, so a retry
// manager handing back a MessageId can be re-emitted without re-polling
// the log. Oldest entries are evicted once capacity is reached.
type recentCache struct {
	capacity int
	order    *list.List
	entries  map[message.ID]*list.Element
}

type recentEntry struct {
	id  message.ID
	msg *message.Message
}

func newRecentCache(capacity int) *recentCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &recentCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[message.ID]*list.Element),
	}
}

func (c *recentCache) put(msg *message.Message) {
	if e, ok := c.entries[msg.ID]; ok {
		c.order.MoveToFront(e)
		e.Value.(*recentEntry).msg = msg
		return
	}
	e := c.order.PushFront(&recentEntry{id: msg.ID, msg: msg})
	c.entries[msg.ID] = e

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*recentEntry).id)
	}
}

func (c *recentCache) get(id message.ID) (*message.Message, bool) {
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return e.Value.(*recentEntry).msg, true
}

func (c *recentCache) delete(id message.ID) {
	e, ok := c.entries[id]
	if !ok {
		return
	}
	c.order.Remove(e)
	delete(c.entries, id)
}
