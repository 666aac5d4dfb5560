package pairing

import (
	"encoding/json"

	"duet/go-core/internal/securestore"
	"duet/go-core/pkg/models"
)

const registryStorageKey = "duet/device-registry/v1"

// deviceRegistry persists the set of peer devices eligible for key
// redistribution. Entries are public material only, but they live in the
// secure store anyway since that is the subsystem's only durable sink.
type deviceRegistry struct {
	kv securestore.Store
}

func (r deviceRegistry) load() (map[string]models.Device, error) {
	raw, ok, err := r.kv.Get(registryStorageKey)
	if err != nil {
		return nil, err
	}
	devices := make(map[string]models.Device)
	if !ok {
		return devices, nil
	}
	if err := json.Unmarshal(raw, &devices); err != nil {
		// An unreadable registry means redistribution targets are lost
		// until devices re-enroll; starting empty beats refusing to start.
		return make(map[string]models.Device), nil
	}
	return devices, nil
}

func (r deviceRegistry) save(devices map[string]models.Device) error {
	raw, err := json.Marshal(devices)
	if err != nil {
		return err
	}
	return r.kv.Set(registryStorageKey, raw)
}

func (r deviceRegistry) clear() error {
	return r.kv.Delete(registryStorageKey)
}
