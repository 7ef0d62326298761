package gateway

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/chatwire/chatwire/internal/entity"
)

// Handler receives one decoded dispatch event. The payload type depends on
// the event name: entity.Message for message events, entity.Channel for
// channel events, entity.User for member updates.
type Handler func(eventType string, payload any)

// dispatcher decodes dispatch frames into typed payloads, updates the entity
// cache, and fans out to registered handlers. It is separate from the
// connection so it can be tested without a websocket.
type dispatcher struct {
	cache  *entity.Cache
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
}

func newDispatcher(cache *entity.Cache, logger *zap.Logger) *dispatcher {
	return &dispatcher{
		cache:    cache,
		logger:   logger,
		handlers: make(map[string][]Handler),
	}
}

func (d *dispatcher) on(eventType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], h)
}

// dispatch decodes and routes one dispatch frame. Undecodable or unknown
// events are logged and dropped; the stream must keep flowing.
func (d *dispatcher) dispatch(eventType string, data json.RawMessage) {
	payload, ok := d.decode(eventType, data)
	if !ok {
		return
	}

	d.mu.RLock()
	handlers := d.handlers[eventType]
	d.mu.RUnlock()

	for _, h := range handlers {
		h(eventType, payload)
	}
}

func (d *dispatcher) decode(eventType string, data json.RawMessage) (any, bool) {
	switch eventType {
	case EventMessageCreate:
		var msg entity.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			d.logDecodeError(eventType, err)
			return nil, false
		}
		d.cache.PutUser(msg.Author)
		return msg, true

	case EventMessageDelete:
		var del messageDeleteData
		if err := json.Unmarshal(data, &del); err != nil {
			d.logDecodeError(eventType, err)
			return nil, false
		}
		return entity.Message{ID: del.ID, ChannelID: del.ChannelID}, true

	case EventChannelCreate, EventChannelUpdate:
		var ch entity.Channel
		if err := json.Unmarshal(data, &ch); err != nil {
			d.logDecodeError(eventType, err)
			return nil, false
		}
		d.cache.PutChannel(ch)
		return ch, true

	case EventChannelDelete:
		var ch entity.Channel
		if err := json.Unmarshal(data, &ch); err != nil {
			d.logDecodeError(eventType, err)
			return nil, false
		}
		d.cache.RemoveChannel(ch.ID)
		return ch, true

	case EventServerCreate:
		var srv entity.Server
		if err := json.Unmarshal(data, &srv); err != nil {
			d.logDecodeError(eventType, err)
			return nil, false
		}
		d.cache.PutServer(srv)
		return srv, true

	case EventServerMemberUpdate:
		var update memberUpdateData
		if err := json.Unmarshal(data, &update); err != nil {
			d.logDecodeError(eventType, err)
			return nil, false
		}
		d.cache.PutUser(update.User)
		return update.User, true

	case EventReady:
		var ready readyData
		if err := json.Unmarshal(data, &ready); err != nil {
			d.logDecodeError(eventType, err)
			return nil, false
		}
		d.cache.PutUser(ready.Self)
		return ready.Self, true

	default:
		d.logger.Debug("ignoring unknown gateway event", zap.String("event", eventType))
		return nil, false
	}
}

func (d *dispatcher) logDecodeError(eventType string, err error) {
	d.logger.Warn("failed to decode gateway event",
		zap.String("event", eventType),
		zap.Error(err),
	)
}
