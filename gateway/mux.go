package gateway

import (
	"context"
	"net"
	"sync"

	"github.com/soheilhy/cmux"

	"github.com/adamgarcia4/goLearning/gateway/logger"
)

// serveMux splits one client port between the HTTP and line adapters by
// sniffing the first bytes of each connection: anything that starts like an
// HTTP/1 request line goes to the HTTP adapter, the rest to the line adapter.
func (g *Gateway) serveMux(ctx context.Context, lis net.Listener) error {
	m := cmux.New(lis)
	if g.config.ClientReadTimeout > 0 {
		m.SetReadTimeout(g.config.ClientReadTimeout)
	}

	httpL := m.Match(cmux.HTTP1Fast())
	lineL := m.Match(cmux.Any())

	var wg sync.WaitGroup
	for _, s := range []struct {
		lis     net.Listener
		adapter streamAdapter
	}{
		{httpL, httpAdapter(g)},
		{lineL, lineAdapter(g)},
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.serveStream(ctx, s.lis, s.adapter); err != nil {
				logger.Errorf("[mux] %s adapter stopped: %v", s.adapter.name, err)
			}
		}()
	}

	stop := context.AfterFunc(ctx, func() { lis.Close() })
	defer stop()

	logger.Printf("[mux] serving http and line clients on %s", lis.Addr())
	err := m.Serve()
	wg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
