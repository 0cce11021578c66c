// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// answer replies to the next call frame on conn with a copy of v.
func answer(t *testing.T, conn Conn, v any) {
	t.Helper()
	req, err := decodeFrame(<-conn.Recv())
	require.NoError(t, err)
	require.Equal(t, kindCall, req.Kind)

	data, err := copyData(v)
	require.NoError(t, err)
	resp, err := encodeFrame(&frame{Kind: kindReturn, ID: req.ID, Value: &wireValue{Data: data}})
	require.NoError(t, err)
	require.NoError(t, conn.Send(resp))
}

func TestEndpoint_ResponseSentBeforeCloseIsDelivered(t *testing.T) {
	for i := range 200 {
		a, b := Pipe()
		ep := NewEndpoint(a, WithName("caller"))
		call := ep.Root("svc").Go(context.Background(), "answer")

		answer(t, b, 42)
		require.NoError(t, b.Close())

		v, err := call.Wait(context.Background())
		require.NoError(t, err, "iteration %d", i)
		var n int
		require.NoError(t, v.Decode(&n))
		assert.Equal(t, 42, n)
		<-ep.Done()
		assert.ErrorIs(t, ep.Err(), ErrBridgeSevered)
		require.NoError(t, ep.Close())
	}
}

func TestPending_LateSyncReplyReleasesHandle(t *testing.T) {
	a, b := Pipe()
	ep := NewEndpoint(a, WithName("caller"))
	t.Cleanup(func() { _ = ep.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cell := newWaitCell()
	cell.notify(nil, ctx.Err())

	h := ep.newHandle(7)
	p := &pending{kind: "sync", endpoint: ep.name, cell: cell}
	p.resolve(&Value{handle: h}, nil)

	assert.True(t, h.Released())
	f, err := decodeFrame(<-b.Recv())
	require.NoError(t, err)
	assert.Equal(t, kindRelease, f.Kind)
	assert.Equal(t, HandleID(7), f.Target)

	v, err := cell.wait(context.Background())
	assert.Nil(t, v)
	assert.ErrorIs(t, err, context.Canceled, "the caller keeps its cancellation")
}
