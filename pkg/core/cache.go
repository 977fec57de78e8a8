/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package core

import (
	"container/list"
	"sync"
)

// clientCache is a bounded LRU of device clients for one timeout
// class. Purely a performance optimization: eviction only drops a
// cheap-to-rebuild handle, never state.
type clientCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type cacheEntry struct {
	ip     string
	client DeviceClient
}

func newClientCache(capacity int) *clientCache {
	return &clientCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

func (c *clientCache) get(ip string) (DeviceClient, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[ip]
	if !ok {
		return nil, false
	}

	c.order.MoveToFront(elem)

	return elem.Value.(*cacheEntry).client, true
}

func (c *clientCache) put(ip string, client DeviceClient) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[ip]; ok {
		elem.Value.(*cacheEntry).client = client
		c.order.MoveToFront(elem)

		return
	}

	c.entries[ip] = c.order.PushFront(&cacheEntry{ip: ip, client: client})

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).ip)
	}
}

func (c *clientCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.order.Len()
}
