package outbox

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/kilnpay/pkg/enums"
)

type DecoderFunc func(payload json.RawMessage) (any, error)

type registryKey struct {
	kind    enums.NotificationKind
	version int
}

// DecoderRegistry maps an event kind and payload version to its decoder.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]DecoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]DecoderFunc)}
}

func (r *DecoderRegistry) Register(kind enums.NotificationKind, version int, decoder DecoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{kind: kind, version: version}] = decoder
}

func (r *DecoderRegistry) Decode(kind enums.NotificationKind, version int, payload json.RawMessage) (any, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if decoder, ok := r.registry[registryKey{kind: kind, version: version}]; ok {
		return decoder(payload)
	}
	return nil, fmt.Errorf("decoder not registered for %s@v%d", kind, version)
}
