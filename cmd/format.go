// cmd/format.go

package main

import (
	"os"
	"path/filepath"
	"regexp"

	"AveMQ/pkg/chunk"
	"AveMQ/pkg/meta"
	"AveMQ/pkg/utils"

	"github.com/urfave/cli/v2"
)

func format(c *cli.Context) error {
	if c.Args().Len() < 2 {
		logger.Fatalf("DIR and NAME are required")
	}
	dir := streamDir(c)
	name := c.Args().Get(1)
	validName := regexp.MustCompile(`^[a-z0-9][a-z0-9\-]{1,61}[a-z0-9]$`)
	if !validName.MatchString(name) {
		logger.Fatalf("invalid name: %s, only alphabet, number and - are allowed, and the length should be 3 to 63 characters.", name)
	}

	conf := &chunk.Config{
		BasePath:          dir,
		ChunkDataSize:     int32(c.Int("chunk-size") << 20),
		ChunkDataUnitSize: int32(c.Int("unit-size")),
		ChunkDataCount:    int32(c.Int("unit-count")),
	}
	prefix := c.String("prefix")
	if prefix == "" {
		logger.Fatalf("prefix of chunk file names is empty")
	}
	conf.FileNamingStrategy = chunk.NewDefaultFileNamingStrategy(prefix)
	if conf.IsFixedDataSize() {
		conf.ChunkDataSize = 0
	}
	if err := conf.Validate(); err != nil {
		logger.Fatalf("invalid layout: %s", err)
	}

	if c.Bool("no-update") && utils.Exists(filepath.Join(dir, meta.FormatFileName)) {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Fatalf("create %s: %s", dir, err)
	}

	format := &meta.Format{
		Name:              name,
		ChunkDataSize:     conf.GetChunkDataSize(),
		ChunkDataUnitSize: conf.ChunkDataUnitSize,
		ChunkDataCount:    conf.ChunkDataCount,
		FilePrefix:        prefix,
	}
	if err := meta.Init(dir, format, c.Bool("force")); err != nil {
		logger.Fatalf("format: %s", err)
	}
	logger.Infof("Stream is formatted as %s", format)
	return nil
}

func formatFlags() *cli.Command {
	return &cli.Command{
		Name:      "format",
		Usage:     "format a stream directory",
		ArgsUsage: "DIR NAME",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "chunk-size",
				Value: 256,
				Usage: "size of chunk data in MiB",
			},
			&cli.IntFlag{
				Name:  "unit-size",
				Usage: "size of fixed-size records in bytes (with --unit-count)",
			},
			&cli.IntFlag{
				Name:  "unit-count",
				Usage: "number of fixed-size records per chunk (with --unit-size)",
			},
			&cli.StringFlag{
				Name:  "prefix",
				Value: "chunk-",
				Usage: "prefix of chunk file names",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "overwrite existing format",
			},
			&cli.BoolFlag{
				Name:  "no-update",
				Usage: "don't update existing stream",
			},
		},
		Action: format,
	}
}
