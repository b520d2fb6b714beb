package controllers

import (
	"time"

	"github.com/rzbill/sharedlog/internal/logmanager"
	"github.com/rzbill/sharedlog/internal/physlog"
)

// containerView is the JSON shape of one hosted container.
type containerView struct {
	ID          string `json:"id"`
	Path        string `json:"path"`
	ExtentSize  uint32 `json:"extentSize"`
	MaxExtents  uint32 `json:"maxExtents"`
	FreeExtents uint32 `json:"freeExtents"`
	Streams     int    `json:"streams"`
	Generation  uint64 `json:"generation"`
	Capacity    uint64 `json:"capacity"`
	Free        uint64 `json:"free"`
}

func newContainerView(c *logmanager.Container) containerView {
	u := c.Usage()
	return containerView{
		ID:          c.ID().String(),
		Path:        c.Path(),
		ExtentSize:  u.ExtentSize,
		MaxExtents:  u.MaxExtents,
		FreeExtents: u.FreeExtents,
		Streams:     u.Streams,
		Generation:  u.Generation,
		Capacity:    u.Capacity,
		Free:        u.Free,
	}
}

// streamView is the JSON shape of one stream directory row.
type streamView struct {
	ID        string    `json:"id"`
	Alias     string    `json:"alias,omitempty"`
	Head      uint64    `json:"head"`
	Tail      uint64    `json:"tail"`
	Extents   []uint32  `json:"extents"`
	Open      bool      `json:"open"`
	CreatedAt time.Time `json:"createdAt"`
}

func newStreamView(si physlog.StreamInfo) streamView {
	return streamView{
		ID:        si.ID.String(),
		Alias:     si.Alias,
		Head:      si.Head,
		Tail:      si.Tail,
		Extents:   si.Extents,
		Open:      si.Open,
		CreatedAt: si.CreatedAt,
	}
}
