//go:build !whisper

package stt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubReportsNotBuilt(t *testing.T) {
	tr, err := New("models/ggml-base.bin")
	require.ErrorIs(t, err, ErrNotBuilt)
	assert.Nil(t, tr)

	_, err = (&Transcriber{}).TranscribePCM(context.Background(), []float32{0}, Options{})
	assert.ErrorIs(t, err, ErrNotBuilt)
}
