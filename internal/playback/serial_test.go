// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerial_ReentrantPostRunsAfterCurrentStep(t *testing.T) {
	var ex serial
	var order []string

	ex.run(func() {
		order = append(order, "outer-start")
		ex.post(func() { order = append(order, "nested") })
		order = append(order, "outer-end")
	})

	assert.Equal(t, []string{"outer-start", "outer-end", "nested"}, order)
}

func TestSerial_StepsNeverInterleave(t *testing.T) {
	var ex serial
	var (
		inside  int
		overlap bool
		total   int
	)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ex.run(func() {
					inside++
					if inside > 1 {
						overlap = true
					}
					total++
					inside--
				})
			}
		}()
	}
	wg.Wait()

	assert.False(t, overlap)
	assert.Equal(t, 1600, total)
}

func TestSerial_PanickingStepDoesNotWedgeQueue(t *testing.T) {
	var recovered []any
	ex := serial{onPanic: func(v any) { recovered = append(recovered, v) }}

	ex.run(func() {
		ex.post(func() { panic("listener blew up") })
	})

	ran := false
	ex.run(func() { ran = true })

	assert.True(t, ran)
	assert.Equal(t, []any{"listener blew up"}, recovered)
}
