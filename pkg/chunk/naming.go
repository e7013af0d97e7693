// pkg/chunk/naming.go

package chunk

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// FileNamingStrategy maps chunk numbers to file names inside a directory.
type FileNamingStrategy interface {
	// GetFileNameFor returns the file of chunk `number`.
	GetFileNameFor(path string, number int32) string
	// GetChunkFiles lists the chunk files of path ordered by chunk number.
	GetChunkFiles(path string) ([]string, error)
	// GetTempFiles lists leftovers of interrupted chunk creations.
	GetTempFiles(path string) ([]string, error)
	// GetTempFileName returns a new unique temporary file name.
	GetTempFileName(path string) string
}

const tempFileSuffix = ".tmp"

// DefaultFileNamingStrategy names chunks as prefix followed by the zero padded
// chunk number, e.g. chunk-00000012.
type DefaultFileNamingStrategy struct {
	prefix  string
	pattern *regexp.Regexp
}

func NewDefaultFileNamingStrategy(prefix string) *DefaultFileNamingStrategy {
	if prefix == "" {
		panic("prefix of chunk files should not be empty")
	}
	return &DefaultFileNamingStrategy{
		prefix:  prefix,
		pattern: regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + `(\d{8,})$`),
	}
}

func (s *DefaultFileNamingStrategy) Prefix() string {
	return s.prefix
}

func (s *DefaultFileNamingStrategy) GetFileNameFor(path string, number int32) string {
	return filepath.Join(path, fmt.Sprintf("%s%08d", s.prefix, number))
}

// ParseChunkNumber returns the chunk number encoded in a file name.
func (s *DefaultFileNamingStrategy) ParseChunkNumber(name string) (int32, error) {
	m := s.pattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, errors.Errorf("%s is not a chunk file", name)
	}
	n, err := strconv.ParseInt(m[1], 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "parse chunk number of %s", name)
	}
	return int32(n), nil
}

func (s *DefaultFileNamingStrategy) GetChunkFiles(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	type numbered struct {
		name   string
		number int32
	}
	var files []numbered
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, err := s.ParseChunkNumber(e.Name())
		if err != nil {
			continue
		}
		files = append(files, numbered{filepath.Join(path, e.Name()), n})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].number < files[j].number })
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, nil
}

func (s *DefaultFileNamingStrategy) GetTempFiles(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), tempFileSuffix) {
			names = append(names, filepath.Join(path, e.Name()))
		}
	}
	return names, nil
}

func (s *DefaultFileNamingStrategy) GetTempFileName(path string) string {
	return filepath.Join(path, uuid.New().String()+tempFileSuffix)
}
