//go:build !whisper

package stt

import "context"

type Transcriber struct{}

func New(string) (*Transcriber, error) { return nil, ErrNotBuilt }

func (t *Transcriber) Close() error { return nil }

func (t *Transcriber) TranscribePCM(context.Context, []float32, Options) (Result, error) {
	return Result{}, ErrNotBuilt
}
