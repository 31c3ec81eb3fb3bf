package discovery

import (
	"context"
	"math"
	"time"

	ssdp "github.com/alexballas/go-ssdp"
)

// Searcher performs one broadcast search round.
type Searcher interface {
	Search(ctx context.Context, serviceType string, wait time.Duration) ([]Response, error)
}

// SSDPSearcher sends M-SEARCH requests with go-ssdp.
type SSDPSearcher struct {
	// LocalAddr pins the multicast interface; empty uses the default route.
	LocalAddr string
}

type ssdpResult struct {
	services []ssdp.Service
	err      error
}

// Search blocks for up to wait collecting answers. The underlying library
// is not cancellable, so a cancelled ctx abandons the round and its late
// results are discarded.
func (s SSDPSearcher) Search(ctx context.Context, serviceType string, wait time.Duration) ([]Response, error) {
	waitSec := int(math.Ceil(wait.Seconds()))
	if waitSec < 1 {
		waitSec = 1
	}

	done := make(chan ssdpResult, 1)
	go func() {
		services, err := ssdp.Search(serviceType, waitSec, s.LocalAddr)
		done <- ssdpResult{services: services, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		out := make([]Response, 0, len(res.services))
		for _, svc := range res.services {
			out = append(out, Response{
				ServiceType: svc.Type,
				USN:         svc.USN,
				Location:    svc.Location,
				Server:      svc.Server,
			})
		}
		return out, nil
	}
}
