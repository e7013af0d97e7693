// pkg/chunk/page_test.go

package chunk

import (
	"io"
	"sync/atomic"
	"testing"

	"AveMQ/pkg/utils"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestPageRelease(t *testing.T) {
	before := utils.AllocMemory()
	p, err := NewOffPage(4096)
	require.NoError(t, err)
	require.Equal(t, before+4096, utils.AllocMemory())
	require.Len(t, p.Data, 4096)

	p.Release()
	require.Nil(t, p.Data)
	require.Equal(t, before, utils.AllocMemory())

	// a second release is reported, not freed twice
	p.Release()
	require.Equal(t, before, utils.AllocMemory())

	_, err = NewOffPage(0)
	require.Error(t, err)
}

func TestGuardedPage(t *testing.T) {
	p, err := NewOffPage(16)
	require.NoError(t, err)
	g := newGuardedPage(p)
	require.Equal(t, int64(16), g.size())

	n, err := g.WriteAt([]byte("hello"), 4)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	_, err = g.WriteAt([]byte("overflow"), 10)
	require.Error(t, err)

	buf := make([]byte, 5)
	_, err = g.ReadAt(buf, 4)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
	n, err = g.ReadAt(make([]byte, 8), 12)
	require.Equal(t, 4, n)
	require.Equal(t, io.EOF, err)

	s := newMemoryStream(g, 0)
	_, err = s.Write([]byte("ab"))
	require.NoError(t, err)
	_, err = s.Write([]byte("cd"))
	require.NoError(t, err)
	_, err = g.ReadAt(buf[:4], 0)
	require.NoError(t, err)
	require.Equal(t, "abcd", string(buf[:4]))
	require.NoError(t, s.Resize(16))
	require.Error(t, s.Resize(17))

	require.True(t, g.free())
	require.False(t, g.free())
	_, err = g.ReadAt(buf, 0)
	require.True(t, errors.Is(err, ErrDestroying))
	_, err = g.WriteAt(buf, 0)
	require.True(t, errors.Is(err, ErrDestroying))
	require.Zero(t, g.size())
}

func TestController(t *testing.T) {
	var con Controller
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	done := make(chan error, 2)
	go func() {
		done <- con.Execute("k", func() error {
			atomic.AddInt32(&calls, 1)
			close(started)
			<-release
			return errors.New("failed")
		})
	}()
	<-started
	go func() {
		done <- con.Execute("k", func() error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	}()
	close(release)

	failed := 0
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			require.EqualError(t, err, "failed")
			failed++
		}
	}
	// the second caller either joined the running call or ran after it
	require.Equal(t, 3-failed, int(atomic.LoadInt32(&calls)))
}
