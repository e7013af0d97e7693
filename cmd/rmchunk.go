// cmd/rmchunk.go

package main

import (
	"github.com/urfave/cli/v2"
)

func rmchunkFlags() *cli.Command {
	return &cli.Command{
		Name:      "rmchunk",
		Usage:     "remove the oldest completed chunks of a stream",
		ArgsUsage: "DIR",
		Action:    rmchunk,
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:  "keep",
				Value: 1,
				Usage: "number of completed chunks to keep",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "only print the chunks to remove",
			},
		},
	}
}

func rmchunk(ctx *cli.Context) error {
	dir := streamDir(ctx)
	keep := ctx.Int("keep")
	if keep < 0 {
		logger.Fatalf("invalid keep: %d", keep)
	}
	m, err := openStream(ctx, dir)
	if err != nil {
		logger.Fatalf("load %s: %s", dir, err)
	}
	defer m.Close()

	var completed int
	chunks := m.GetAllChunks()
	for _, c := range chunks {
		if c.IsCompleted() {
			completed++
		}
	}
	var removed int
	for _, c := range chunks {
		if completed-removed <= keep {
			break
		}
		// chunks are ordered, an ongoing one is always the last
		if !c.IsCompleted() {
			break
		}
		if ctx.Bool("dry-run") {
			logger.Infof("would remove chunk %s", c)
			removed++
			continue
		}
		if !m.RemoveChunk(c) {
			logger.Warnf("chunk %s was already removed", c)
			continue
		}
		removed++
		logger.Infof("chunk %s removed", c)
	}
	logger.Infof("%d chunks removed, %d left", removed, len(chunks)-removed)
	return nil
}
