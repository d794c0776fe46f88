package handlers

import (
	"net/http"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	statsChannelLimit = 10000
	// statsParallelism keeps most of the store pool free for relay traffic.
	statsParallelism = 4
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalChannels   int      `json:"total_channels"`
	PendingMessages int      `json:"pending_messages"`
	OpenIncidents   int64    `json:"open_incidents"`
	TopChannels     []string `json:"top_channels"` // up to five channels with the most pending messages
}

type channelLoad struct {
	name    string
	pending int
}

// Stats returns relay-wide counters. Pending counts are capped per channel.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	names, err := h.registry.List(ctx, statsChannelLimit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list channels")
		return
	}

	var (
		mu      sync.Mutex
		pending int
		loads   []channelLoad
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statsParallelism)
	for _, name := range names {
		g.Go(func() error {
			n, err := h.messages.CountPending(gctx, name, pendingCap)
			if err != nil || n == 0 {
				// Unreadable channels are skipped.
				return nil
			}
			mu.Lock()
			pending += n
			loads = append(loads, channelLoad{name: name, pending: n})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return
	}

	sort.Slice(loads, func(i, j int) bool {
		if loads[i].pending != loads[j].pending {
			return loads[i].pending > loads[j].pending
		}
		return loads[i].name < loads[j].name
	})
	top := make([]string, 0, 5)
	for i := 0; i < len(loads) && i < 5; i++ {
		top = append(top, loads[i].name)
	}

	var incidents int64
	if h.redis != nil {
		incidents, err = h.redis.CountIncidents(ctx)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to count incidents")
			return
		}
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalChannels:   len(names),
		PendingMessages: pending,
		OpenIncidents:   incidents,
		TopChannels:     top,
	})
}
