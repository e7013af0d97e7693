// cmd/stream.go

package main

import (
	"io"
	"os"
	"path/filepath"

	"AveMQ/pkg/chunk"
	"AveMQ/pkg/meta"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

// rawRecord is an opaque payload, the tools never look inside records.
type rawRecord []byte

func (r rawRecord) WriteTo(_ int64, w io.Writer) error {
	_, err := w.Write(r)
	return err
}

// decodeRaw accepts any payload but the zero fill of unwritten space.
func decodeRaw(data []byte) (chunk.LogRecord, error) {
	for _, b := range data {
		if b != 0 {
			buf := make([]byte, len(data))
			copy(buf, data)
			return rawRecord(buf), nil
		}
	}
	return nil, errors.New("empty record")
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "config",
		Usage: "YAML file with chunk settings",
	}
}

// streamConfig builds the chunk settings of the stream stored in dir. The
// layout always comes from the stored format, other settings may come from a
// config file.
func streamConfig(c *cli.Context, dir string) (*chunk.Config, *meta.Format, error) {
	format, err := meta.Load(dir)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, nil, errors.Errorf("%s is not formatted", dir)
		}
		return nil, nil, err
	}
	conf := &chunk.Config{}
	if path := c.String("config"); path != "" {
		if conf, err = chunk.LoadConfig(path); err != nil {
			return nil, nil, err
		}
	}
	conf.BasePath = dir
	if format.ChunkDataUnitSize > 0 {
		conf.ChunkDataSize = 0
		conf.ChunkDataUnitSize = format.ChunkDataUnitSize
		conf.ChunkDataCount = format.ChunkDataCount
	} else {
		conf.ChunkDataSize = format.ChunkDataSize
		conf.ChunkDataUnitSize, conf.ChunkDataCount = 0, 0
	}
	if format.FilePrefix != "" {
		conf.FileNamingStrategy = chunk.NewDefaultFileNamingStrategy(format.FilePrefix)
	}
	return conf, format, nil
}

// openStream loads every chunk of the stream stored in dir.
func openStream(c *cli.Context, dir string) (*chunk.ChunkManager, error) {
	conf, format, err := streamConfig(c, dir)
	if err != nil {
		return nil, err
	}
	return loadStream(format.Name, conf)
}

func loadStream(name string, conf *chunk.Config) (*chunk.ChunkManager, error) {
	m, err := chunk.NewChunkManager(name, conf, false)
	if err != nil {
		return nil, err
	}
	if err = m.Load(decodeRaw); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

func streamDir(c *cli.Context) string {
	if c.Args().Len() < 1 {
		logger.Fatalf("DIR is needed")
	}
	dir, err := filepath.Abs(c.Args().Get(0))
	if err != nil {
		logger.Fatalf("abs of %s: %s", c.Args().Get(0), err)
	}
	return dir
}
