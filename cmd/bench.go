// cmd/bench.go

package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"AveMQ/pkg/chunk"
	"AveMQ/pkg/utils"

	"github.com/urfave/cli/v2"
)

func benchFlags() *cli.Command {
	return &cli.Command{
		Name:      "bench",
		Usage:     "run write and read benchmark on a stream",
		ArgsUsage: "DIR",
		Action:    bench,
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:  "count",
				Value: 100000,
				Usage: "number of records to write",
			},
			&cli.IntFlag{
				Name:  "record-size",
				Value: 128,
				Usage: "size of each record in bytes, ignored by fixed-size streams",
			},
			&cli.BoolFlag{
				Name:  "memory",
				Usage: "keep chunks in memory only, DIR is not needed",
			},
			&cli.IntFlag{
				Name:  "chunk-size",
				Value: 64,
				Usage: "size of chunk data in MiB for memory streams",
			},
			&cli.BoolFlag{
				Name:  "no-read",
				Usage: "skip the read pass",
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "print chunk metrics at the end",
			},
		},
	}
}

func benchStream(c *cli.Context) (*chunk.ChunkManager, error) {
	if !c.Bool("memory") {
		conf, format, err := streamConfig(c, streamDir(c))
		if err != nil {
			return nil, err
		}
		conf.EnableStatistics = true
		return loadStream(format.Name, conf)
	}
	conf := &chunk.Config{ChunkDataSize: int32(c.Int("chunk-size") << 20)}
	if path := c.String("config"); path != "" {
		loaded, err := chunk.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		conf = loaded
	}
	conf.EnableStatistics = true
	return chunk.NewChunkManager("bench", conf, true)
}

func benchRecord(size int, seq int) rawRecord {
	r := make(rawRecord, size)
	for i := range r {
		r[i] = byte(seq+i) | 1
	}
	return r
}

func bench(c *cli.Context) error {
	count := c.Int("count")
	if count <= 0 {
		logger.Fatalf("invalid count: %d", count)
	}
	m, err := benchStream(c)
	if err != nil {
		logger.Fatalf("open stream: %s", err)
	}
	defer m.Close()
	m.Start()

	size := c.Int("record-size")
	if conf := m.Config(); conf.IsFixedDataSize() {
		size = int(conf.ChunkDataUnitSize)
	}
	if size <= 0 {
		logger.Fatalf("invalid record size: %d", size)
	}

	w := chunk.NewChunkWriter(m)
	if err = w.Open(); err != nil {
		logger.Fatalf("open writer: %s", err)
	}
	defer w.Close()

	quiet := c.Bool("quiet")
	positions := make([]int64, 0, count)
	progress, bar := utils.NewProgressBar("writing records: ", int64(count), quiet)
	start := time.Now()
	for i := 0; i < count; i++ {
		pos, err := w.Write(benchRecord(size, i))
		if err != nil {
			logger.Fatalf("write record %d: %s", i, err)
		}
		positions = append(positions, pos)
		bar.Increment()
	}
	if err = w.Flush(); err != nil {
		logger.Fatalf("flush: %s", err)
	}
	used := time.Since(start)
	progress.Wait()
	logger.Infof("wrote %d records of %d bytes in %s, %.1f MiB/s", count, size, used,
		float64(count*size)/used.Seconds()/(1<<20))

	if !c.Bool("no-read") {
		r := chunk.NewChunkReader(m, w)
		progress, bar = utils.NewProgressBar("reading records: ", int64(count), quiet)
		start = time.Now()
		var missing int
		for i, pos := range positions {
			record, err := r.TryReadAt(pos, decodeRaw, true)
			if err != nil {
				logger.Fatalf("read record %d at %d: %s", i, pos, err)
			}
			if record == nil || len(record.(rawRecord)) != size {
				missing++
			}
			bar.Increment()
		}
		used = time.Since(start)
		progress.Wait()
		logger.Infof("read %d records in %s, %.1f MiB/s, %d missing", count, used,
			float64(count*size)/used.Seconds()/(1<<20), missing)
	}

	ru := utils.GetRusage()
	logger.Infof("cpu usage: %s user, %s sys, max rss %d MiB", ru.UserTime(), ru.SystemTime(), ru.MaxRss()>>20)
	if c.Bool("metrics") {
		printMetrics()
	}
	return nil
}

func printMetrics() {
	mfs, err := chunk.RegisterMetrics().Gather()
	if err != nil {
		logger.Errorf("gather metrics: %s", err)
		return
	}
	var lines []string
	for _, mf := range mfs {
		for _, metric := range mf.GetMetric() {
			var labels []string
			for _, l := range metric.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
			}
			value := metric.GetCounter().GetValue()
			if g := metric.GetGauge(); g != nil {
				value = g.GetValue()
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %v", mf.GetName(), strings.Join(labels, ","), value))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Println(l)
	}
}
