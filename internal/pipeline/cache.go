package pipeline

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/exp/slog"
)

const (
	headerVersionOne = 1
	headerSize       = 16 + len(uuid.UUID{})
)

// Identity is what a pipeline cache blob must have been produced by to be reusable.
type Identity struct {
	VendorID  uint32
	DeviceID  uint32
	CacheUUID uuid.UUID
}

// IdentityOf reads the identity out of the physical device properties.
func IdentityOf(props *core1_0.PhysicalDeviceProperties) Identity {
	return Identity{
		VendorID:  uint32(props.VendorID),
		DeviceID:  uint32(props.DeviceID),
		CacheUUID: props.PipelineCacheUUID,
	}
}

type cacheHeader struct {
	Length    uint32
	Version   uint32
	VendorID  uint32
	DeviceID  uint32
	CacheUUID uuid.UUID
}

// CheckHeader reports why data can not seed a cache on the device described by id, or nil if
// it can.
func CheckHeader(data []byte, id Identity) error {
	if len(data) < headerSize {
		return errors.Newf("cache data is %d bytes, shorter than its header", len(data))
	}

	var h cacheHeader
	err := binary.Read(bytes.NewReader(data), common.ByteOrder, &h)
	if err != nil {
		return errors.Wrap(err, "read cache header")
	}

	switch {
	case h.Length < uint32(headerSize) || int(h.Length) > len(data):
		return errors.Newf("bad header length %d", h.Length)
	case h.Version != headerVersionOne:
		return errors.Newf("unsupported header version %d", h.Version)
	case h.VendorID != id.VendorID:
		return errors.Newf("vendor id %#x, driver expects %#x", h.VendorID, id.VendorID)
	case h.DeviceID != id.DeviceID:
		return errors.Newf("device id %#x, driver expects %#x", h.DeviceID, id.DeviceID)
	case h.CacheUUID != id.CacheUUID:
		return errors.Newf("cache uuid %s, driver expects %s", h.CacheUUID, id.CacheUUID)
	}
	return nil
}

// Cache is a pipeline cache optionally persisted to a file between runs.
type Cache struct {
	Handle core1_0.PipelineCache
	path   string
	driver core1_0.CoreDeviceDriver
	logger *slog.Logger
}

// LoadCache creates a pipeline cache seeded from path. A missing file is a cache miss; a file
// written by another driver or device is discarded and removed.
func LoadCache(driver core1_0.CoreDeviceDriver, path string, id Identity, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := readCache(path, id, logger)
	if err != nil {
		return nil, err
	}

	handle, _, err := driver.CreatePipelineCache(nil, core1_0.PipelineCacheCreateInfo{
		InitialData: data,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline cache")
	}

	return &Cache{
		Handle: handle,
		path:   path,
		driver: driver,
		logger: logger,
	}, nil
}

func readCache(path string, id Identity, logger *slog.Logger) ([]byte, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("pipeline cache miss", "path", path)
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "read pipeline cache %s", path)
	}

	if err := CheckHeader(data, id); err != nil {
		logger.Warn("discarding pipeline cache", "path", path, "reason", err)
		_ = os.Remove(path)
		return nil, nil
	}

	logger.Info("pipeline cache hit", "path", path, "bytes", len(data))
	return data, nil
}

// Save writes the cache contents back to its file. It does nothing for an unpersisted cache.
func (c *Cache) Save() error {
	if c == nil || c.path == "" {
		return nil
	}

	data, _, err := c.driver.GetPipelineCacheData(c.Handle)
	if err != nil {
		return errors.Wrap(err, "get pipeline cache data")
	}

	err = os.WriteFile(c.path, data, 0o644)
	if err != nil {
		return errors.Wrapf(err, "write pipeline cache %s", c.path)
	}

	c.logger.Debug("pipeline cache saved", "path", c.path, "bytes", len(data))
	return nil
}

func (c *Cache) Destroy() {
	if c == nil || !c.Handle.Initialized() {
		return
	}
	c.driver.DestroyPipelineCache(c.Handle, nil)
	c.Handle = core1_0.PipelineCache{}
}
