// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package eit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_DrainChunks(t *testing.T) {
	q := NewQueue()
	for i := range 25 {
		q.Enqueue(&Event{ChanID: uint32(i + 1)})
	}
	require.Equal(t, 25, q.Len())

	first := q.Drain(DefaultChunkSize)
	require.Len(t, first, 20)
	assert.Equal(t, uint32(1), first[0].ChanID)
	assert.Equal(t, uint32(20), first[19].ChanID)

	second := q.Drain(DefaultChunkSize)
	require.Len(t, second, 5)
	assert.Equal(t, uint32(21), second[0].ChanID)

	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain(DefaultChunkSize))
}

func TestQueue_Pop(t *testing.T) {
	q := NewQueue()
	_, ok := q.Pop()
	assert.False(t, ok)

	q.Enqueue(&Event{Title: "a"}, &Event{Title: "b"})
	ev, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", ev.Title)
	assert.Equal(t, 1, q.Len())

	q.Clear()
	assert.Equal(t, 0, q.Len())
}

func TestQueue_RequeueKeepsOrder(t *testing.T) {
	q := NewQueue()
	q.Enqueue(&Event{Title: "a"}, &Event{Title: "b"}, &Event{Title: "c"})

	head := q.Drain(2)
	q.Enqueue(&Event{Title: "d"})
	q.Requeue(head...)
	q.Requeue()

	var titles []string
	for _, ev := range q.Drain(10) {
		titles = append(titles, ev.Title)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, titles)
}

func TestQueue_Concurrent(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				q.Enqueue(&Event{})
			}
		}()
	}
	wg.Wait()

	total := 0
	for {
		batch := q.Drain(33)
		if len(batch) == 0 {
			break
		}
		total += len(batch)
	}
	assert.Equal(t, 800, total)
}
