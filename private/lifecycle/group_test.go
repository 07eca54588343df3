// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package lifecycle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/hubtide/hubtide/private/lifecycle"
	"github.com/hubtide/hubtide/private/testcontext"
)

func TestGroup_RunCloseOrder(t *testing.T) {
	tctx := testcontext.New(t)
	defer tctx.Cleanup()

	log := zaptest.NewLogger(t)
	group := lifecycle.NewGroup(log)

	var order []string
	group.Add(lifecycle.Item{
		Name: "first",
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Close: func() error {
			order = append(order, "first")
			return nil
		},
	})
	group.Add(lifecycle.Item{
		Name: "second",
		Close: func() error {
			order = append(order, "second")
			return nil
		},
	})

	ctx, cancel := context.WithCancel(tctx)
	g, gctx := errgroup.WithContext(ctx)
	group.Run(gctx, g)

	cancel()
	// context cancellation counts as a clean shutdown
	require.NoError(t, g.Wait())

	require.NoError(t, group.Close())
	require.Equal(t, []string{"second", "first"}, order)
}

func TestGroup_RunnerFailure(t *testing.T) {
	tctx := testcontext.New(t)
	defer tctx.Cleanup()

	log := zaptest.NewLogger(t)
	group := lifecycle.NewGroup(log)

	boom := errors.New("boom")
	group.Add(lifecycle.Item{
		Name: "failing",
		Run:  func(ctx context.Context) error { return boom },
	})

	g, gctx := errgroup.WithContext(tctx)
	group.Run(gctx, g)
	require.ErrorIs(t, g.Wait(), boom)
}

func TestGroup_CloseCollectsErrors(t *testing.T) {
	log := zaptest.NewLogger(t)
	group := lifecycle.NewGroup(log)

	first := errors.New("first close failed")
	group.Add(lifecycle.Item{Name: "a", Close: func() error { return first }})
	group.Add(lifecycle.Item{Name: "b", Close: func() error { return nil }})

	err := group.Close()
	require.Error(t, err)
	require.Contains(t, err.Error(), "first close failed")
}
