// cmd/check.go

package main

import (
	"github.com/urfave/cli/v2"
)

func checkFlags() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "load a stream and recover its last chunk",
		ArgsUsage: "DIR",
		Action:    check,
		Flags: []cli.Flag{
			configFlag(),
		},
	}
}

type chunkState struct {
	Chunk     string
	Completed bool
	DataBytes int64
	NextPos   int64
}

func check(ctx *cli.Context) error {
	dir := streamDir(ctx)
	m, err := openStream(ctx, dir)
	if err != nil {
		logger.Fatalf("load %s: %s", dir, err)
	}
	defer m.Close()

	chunks := m.GetAllChunks()
	states := make([]*chunkState, 0, len(chunks))
	for _, c := range chunks {
		states = append(states, &chunkState{
			Chunk:     c.String(),
			Completed: c.IsCompleted(),
			DataBytes: c.DataPosition(),
			NextPos:   c.GlobalDataPosition(),
		})
	}
	printJson(states)
	if last := m.GetLastChunk(); last != nil {
		logger.Infof("%d chunks are valid, next record goes to %d", len(chunks), last.GlobalDataPosition())
	} else {
		logger.Infof("stream %s is empty", m.Name())
	}
	return nil
}
