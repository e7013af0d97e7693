// cmd/info.go

package main

import (
	"io"
	"os"

	"AveMQ/pkg/chunk"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func infoFlags() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "show header and footer of chunk files",
		ArgsUsage: "FILE ...",
		Action:    info,
	}
}

type chunkFile struct {
	Name       string
	Size       int64
	Number     int32
	DataSize   int32
	FirstPos   int64
	Sealed     bool
	TotalBytes int32 `json:",omitempty"`
}

// inspectChunkFile reads the header of a chunk file, and its footer when the
// file is sealed.
func inspectChunkFile(name string) (*chunkFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	header, err := chunk.ReadHeader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "header of %s", name)
	}
	cf := &chunkFile{
		Name:     name,
		Size:     fi.Size(),
		Number:   header.ChunkNumber,
		DataSize: header.ChunkDataTotalSize,
		FirstPos: header.ChunkDataStartPosition(),
		Sealed:   fi.Mode().Perm()&0222 == 0,
	}
	if !cf.Sealed {
		return cf, nil
	}
	footerAt := fi.Size() - chunk.ChunkFooterSize
	if footerAt < chunk.ChunkHeaderSize {
		return nil, errors.Errorf("%s is too short for a sealed chunk", name)
	}
	footer, err := chunk.ReadFooter(io.NewSectionReader(f, footerAt, chunk.ChunkFooterSize))
	if err != nil {
		return nil, errors.Wrapf(err, "footer of %s", name)
	}
	cf.TotalBytes = footer.ChunkDataTotalSize
	return cf, nil
}

func info(ctx *cli.Context) error {
	if ctx.Args().Len() < 1 {
		logger.Infof("FILE is needed")
		return nil
	}
	for i := 0; i < ctx.Args().Len(); i++ {
		name := ctx.Args().Get(i)
		cf, err := inspectChunkFile(name)
		if err != nil {
			logger.Errorf("inspect %s: %s", name, err)
			continue
		}
		printJson(cf)
	}
	return nil
}
