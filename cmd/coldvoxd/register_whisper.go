//go:build whisper

package main

import "github.com/coldvox/coldvox/internal/sttplugin"

func init() {
	registerOptionalPlugins = append(registerOptionalPlugins, func(r *sttplugin.Registry) {
		r.Register(sttplugin.NewWhisperFactory())
	})
}
