// pkg/meta/config.go

package meta

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"AveMQ/pkg/utils"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var logger = utils.GetLogger("avemq")

// FormatFileName is the file holding the format of a stream directory.
const FormatFileName = "format.json"

// Format is the persistent layout of a stream. Chunks written with one format
// cannot be read with another, positions would not line up.
type Format struct {
	Name              string
	UUID              string
	ChunkDataSize     int32
	ChunkDataUnitSize int32  `json:",omitempty"`
	ChunkDataCount    int32  `json:",omitempty"`
	FilePrefix        string `json:",omitempty"`
}

func (f *Format) String() string {
	s := fmt.Sprintf("%s (%s) chunk data size %d", f.Name, f.UUID, f.ChunkDataSize)
	if f.ChunkDataUnitSize > 0 {
		s += fmt.Sprintf(", %d records of %d bytes", f.ChunkDataCount, f.ChunkDataUnitSize)
	}
	return s
}

// Check returns an error when chunks written with f cannot be read with other.
func (f *Format) Check(other *Format) error {
	if f.ChunkDataSize != other.ChunkDataSize ||
		f.ChunkDataUnitSize != other.ChunkDataUnitSize ||
		f.ChunkDataCount != other.ChunkDataCount {
		return fmt.Errorf("chunk layout of %s does not match %s", f, other)
	}
	if f.FilePrefix != "" && other.FilePrefix != "" && f.FilePrefix != other.FilePrefix {
		return fmt.Errorf("file prefix %q does not match %q", f.FilePrefix, other.FilePrefix)
	}
	return nil
}

// Load reads the format stored in dir.
func Load(dir string) (*Format, error) {
	body, err := os.ReadFile(filepath.Join(dir, FormatFileName))
	if err != nil {
		return nil, errors.Wrapf(err, "load format of %s", dir)
	}
	var format Format
	if err = json.Unmarshal(body, &format); err != nil {
		return nil, fmt.Errorf("json: %s", err)
	}
	return &format, nil
}

// Init stores format in dir. An existing format is kept unless it is
// different, then Init fails without force.
func Init(dir string, format *Format, force bool) error {
	old, err := Load(dir)
	if err != nil && !os.IsNotExist(errors.Cause(err)) {
		if !force {
			return err
		}
		logger.Warnf("existing format of %s is broken: %s", dir, err)
		old = nil
	}
	if old != nil {
		if force {
			logger.Warnf("existing format will be overwritten: %s", old)
		} else {
			if err = old.Check(format); err != nil {
				return fmt.Errorf("cannot update format from %s to %s: %s", old, format, err)
			}
			format.UUID = old.UUID
			if *old == *format {
				return nil
			}
		}
	}
	if format.UUID == "" {
		format.UUID = uuid.New().String()
	}

	data, err := json.MarshalIndent(format, "", "  ")
	if err != nil {
		return fmt.Errorf("json: %s", err)
	}
	tmp := filepath.Join(dir, FormatFileName+".tmp")
	if err = os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, filepath.Join(dir, FormatFileName)), "save format of %s", dir)
}
