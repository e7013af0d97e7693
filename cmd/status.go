// cmd/status.go

package main

import (
	"encoding/json"
	"fmt"

	"AveMQ/pkg/chunk"
	"AveMQ/pkg/meta"

	"github.com/urfave/cli/v2"
)

type sections struct {
	Setting *meta.Format
	Chunks  []*chunkFile
}

func printJson(v interface{}) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Fatalf("json: %s", err)
	}
	fmt.Println(string(output))
}

func status(ctx *cli.Context) error {
	dir := streamDir(ctx)
	format, err := meta.Load(dir)
	if err != nil {
		logger.Fatalf("load setting: %s", err)
	}

	prefix := format.FilePrefix
	if prefix == "" {
		prefix = "chunk-"
	}
	files, err := chunk.NewDefaultFileNamingStrategy(prefix).GetChunkFiles(dir)
	if err != nil {
		logger.Fatalf("list chunks: %s", err)
	}
	chunks := make([]*chunkFile, 0, len(files))
	for _, name := range files {
		cf, err := inspectChunkFile(name)
		if err != nil {
			logger.Errorf("inspect %s: %s", name, err)
			continue
		}
		chunks = append(chunks, cf)
	}

	printJson(&sections{format, chunks})
	return nil
}

func statusFlags() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "show format and chunks of a stream",
		ArgsUsage: "DIR",
		Action:    status,
	}
}
