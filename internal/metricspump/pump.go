// Package metricspump implements the periodic per-node resource sample
// push: once a WebSocket client authenticates, a 3-second ticker loop
// fetches each registered node's (or one filtered node's) live utilization
// and pushes one JSON frame per node.
//
// This is distinct from internal/metrics, which exposes the gateway's own
// Prometheus operational counters.
package metricspump

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"hvgateway/internal/logger"
	"hvgateway/internal/model"
	"hvgateway/internal/nodeclient"
	"hvgateway/internal/store"
)

// Interval is the per-connection sample cadence.
const Interval = 3 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ClientResolver returns the driver for a node, normally backed by a
// nodecache.Cache so the pump reuses pooled connections across ticks.
type ClientResolver func(node *model.Node) (nodeclient.Client, error)

// Frame is the per-node sample pushed to the client once per tick. Partial
// marks a frame without real utilization data, so clients can distinguish
// "no data" from "idle": a backend with no utilization source (Incus), or
// a node whose driver could not be built or whose metrics fetch failed.
type Frame struct {
	CPU         float64  `json:"cpu"`
	RAM         float64  `json:"ram"`
	Disk        *float64 `json:"disk,omitempty"`
	UptimeSec   *int64   `json:"uptime,omitempty"`
	TimestampMs int64    `json:"timestamp_ms"`
	NodeID      string   `json:"node_id"`
	NodeName    string   `json:"node_name"`
	Partial     bool     `json:"partial,omitempty"`
}

// Serve upgrades r to a WebSocket and streams Frames for every node (or the
// single node matching nodeIDFilter, if non-empty) every Interval until the
// client disconnects or a send fails.
func Serve(w http.ResponseWriter, r *http.Request, nodes store.NodeStore, resolve ClientResolver, nodeIDFilter string) {
	log := logger.Get().With().Str("component", "metricspump").Logger()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("failed to upgrade metrics websocket")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		targets, err := loadTargets(ctx, nodes, nodeIDFilter)
		if err != nil {
			log.Warn().Err(err).Msg("failed to load nodes for metrics tick")
		} else {
			for _, n := range targets {
				frame := sample(ctx, n, resolve)
				if err := conn.WriteJSON(frame); err != nil {
					log.Debug().Err(err).Msg("metrics websocket send failed, terminating session")
					return
				}
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func loadTargets(ctx context.Context, nodes store.NodeStore, nodeIDFilter string) ([]*model.Node, error) {
	if nodeIDFilter == "" {
		return nodes.ListNodes(ctx)
	}
	n, err := nodes.GetNode(ctx, nodeIDFilter)
	if err != nil {
		return nil, err
	}
	return []*model.Node{n}, nil
}

func sample(ctx context.Context, n *model.Node, resolve ClientResolver) Frame {
	frame := Frame{
		TimestampMs: time.Now().UnixMilli(),
		NodeID:      n.ID,
		NodeName:    n.Name,
	}

	client, err := resolve(n)
	if err != nil {
		frame.Partial = true
		return frame
	}

	m, err := client.NodeMetrics(ctx)
	if err != nil {
		frame.Partial = true
		return frame
	}

	frame.CPU = m.CPUPercent
	frame.RAM = m.RAMPercent
	frame.Disk = m.DiskPercent
	frame.UptimeSec = m.UptimeSeconds
	frame.Partial = m.Partial
	return frame
}
