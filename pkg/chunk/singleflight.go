// pkg/chunk/singleflight.go

package chunk

import "sync"

type request struct {
	wg  sync.WaitGroup
	err error
}

// Controller runs one fn per key at a time; callers arriving while it runs
// wait for it and share its result.
type Controller struct {
	sync.Mutex
	rs map[string]*request
}

func (con *Controller) Execute(key string, fn func() error) error {
	con.Lock()
	if con.rs == nil {
		con.rs = make(map[string]*request)
	}
	if c, ok := con.rs[key]; ok {
		con.Unlock()
		c.wg.Wait()
		return c.err
	}
	c := new(request)
	c.wg.Add(1)
	con.rs[key] = c
	con.Unlock()

	c.err = fn()
	c.wg.Done()

	con.Lock()
	delete(con.rs, key)
	con.Unlock()

	return c.err
}
