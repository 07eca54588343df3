// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package lifecycle allows controlling a group of items.
package lifecycle

import (
	"context"
	"runtime"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hubtide/hubtide/private/errs2"
)

var mon = monkit.Package()

// slowShutdown is the duration after which the group starts to complain
// about an item that has not returned from Run after cancellation.
const slowShutdown = 15 * time.Second

// Group implements a collection of items that have a start and a shutdown.
type Group struct {
	log   *zap.Logger
	items []Item
}

// Item is the lifecycle item that group runs and closes.
type Item struct {
	Name  string
	Run   func(ctx context.Context) error
	Close func() error
}

// NewGroup creates a new group.
func NewGroup(log *zap.Logger) *Group {
	return &Group{log: log}
}

// Add adds item to the group.
func (group *Group) Add(item Item) {
	group.items = append(group.items, item)
}

// Run starts all items in the group on g. Cancellation of ctx starts the
// shutdown; items that take too long to return get their goroutine stacks
// dumped in condensed form.
func (group *Group) Run(ctx context.Context, g *errgroup.Group) {
	defer mon.Task()(&ctx)(nil)

	var started []string
	for _, item := range group.items {
		item := item
		started = append(started, item.Name)
		if item.Run == nil {
			continue
		}

		shutdownCtx, shutdownFinished := context.WithCancel(context.Background())
		go func() {
			select {
			case <-ctx.Done():
			case <-shutdownCtx.Done():
				return
			}

			t := time.NewTimer(slowShutdown)
			defer t.Stop()
			select {
			case <-t.C:
				group.log.Warn("item is slow to shut down",
					zap.String("name", item.Name),
					zap.String("stack", string(dumpStacks())))
			case <-shutdownCtx.Done():
			}
		}()

		g.Go(func() error {
			defer shutdownFinished()

			err := errs2.IgnoreCanceled(item.Run(ctx))
			if err != nil {
				group.log.Error("unexpected shutdown of a runner",
					zap.String("name", item.Name),
					zap.Error(err))
			}
			return err
		})
	}

	group.log.Debug("started", zap.Strings("items", started))
}

// Close closes all items in the group in reverse order.
func (group *Group) Close() error {
	var errlist errs.Group

	for i := len(group.items) - 1; i >= 0; i-- {
		item := group.items[i]
		if item.Close == nil {
			continue
		}
		errlist.Add(item.Close())
	}

	return errlist.Err()
}

func dumpStacks() []byte {
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	return condenseStack(buf[:n])
}
