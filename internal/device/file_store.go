package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/lanwake/internal/address"
	"github.com/nerrad567/lanwake/internal/wol"
)

// File permission constants.
const (
	storeDirPermissions  = 0750
	storeFilePermissions = 0600
)

// FileStore implements Store as a YAML document on disk.
//
// Saves write a temporary file in the same directory and rename it over the
// target, so readers never see a partially written file.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the YAML file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file the store reads and writes.
func (s *FileStore) Path() string {
	return s.path
}

type fileDocument struct {
	Devices []fileDevice `yaml:"devices"`
}

type fileDevice struct {
	ID              string    `yaml:"id"`
	Label           string    `yaml:"label"`
	HardwareAddress string    `yaml:"hardware_address"`
	Endpoints       []string  `yaml:"endpoints,omitempty"`
	WakeTargets     []string  `yaml:"wake_targets,omitempty"`
	CreatedAt       time.Time `yaml:"created_at,omitempty"`
	UpdatedAt       time.Time `yaml:"updated_at,omitempty"`
}

// Load reads the document. A missing file is an empty registry.
func (s *FileStore) Load(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Device{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading device file: %w", err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing device file: %w", err)
	}

	devices := make([]Device, 0, len(doc.Devices))
	for i, fd := range doc.Devices {
		d, err := fd.toDevice()
		if err != nil {
			return nil, fmt.Errorf("device file entry %d: %w", i, err)
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// Save writes devices atomically with owner-only permissions.
func (s *FileStore) Save(ctx context.Context, devices []Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := fileDocument{Devices: make([]fileDevice, 0, len(devices))}
	for i := range devices {
		doc.Devices = append(doc.Devices, fromDevice(&devices[i]))
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encoding device file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, storeDirPermissions); err != nil {
		return fmt.Errorf("creating device file directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // No-op once renamed

	if err := tmp.Chmod(storeFilePermissions); err != nil {
		tmp.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("setting file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing device file: %w", err)
	}
	return nil
}

func fromDevice(d *Device) fileDevice {
	fd := fileDevice{
		ID:              d.ID,
		Label:           d.Label,
		HardwareAddress: d.HardwareAddress.String(),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	for _, ep := range d.Endpoints {
		fd.Endpoints = append(fd.Endpoints, ep.String())
	}
	for _, t := range d.WakeTargets {
		fd.WakeTargets = append(fd.WakeTargets, t.String())
	}
	return fd
}

func (fd fileDevice) toDevice() (Device, error) {
	hw, err := address.ParseHardwareAddress(fd.HardwareAddress)
	if err != nil {
		return Device{}, err
	}

	d := Device{
		ID:              fd.ID,
		Label:           fd.Label,
		HardwareAddress: hw,
		CreatedAt:       fd.CreatedAt,
		UpdatedAt:       fd.UpdatedAt,
	}
	for _, text := range fd.Endpoints {
		ep, err := address.ParseEndpoint(text, 0)
		if err != nil {
			return Device{}, err
		}
		d.Endpoints = append(d.Endpoints, ep)
	}
	for _, text := range fd.WakeTargets {
		t, err := wol.ParseDestination(text)
		if err != nil {
			return Device{}, err
		}
		d.WakeTargets = append(d.WakeTargets, t)
	}
	return d, nil
}
