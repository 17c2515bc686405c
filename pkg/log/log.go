/*
Copyright 2026 The LidarCtl Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package log is the ambient structured-logging entry point for every
// binary in the control plane: a zap-backed logr.Logger plus a small
// chainable Fields builder for the domain-specific attributes every
// component logs repeatedly (workflow_id, scan_id, dataset_version_id).
package log

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls the underlying zap core.
type Options struct {
	// Development enables human-readable console encoding and caller info
	// instead of JSON, for local runs.
	Development bool
	// Level is the minimum enabled zap level (-1 debug, 0 info, 1 warn, ...).
	Level int
}

// DefaultOptions returns JSON production logging at info level.
func DefaultOptions() Options {
	return Options{Development: false, Level: 0}
}

// DevelopmentOptions returns console logging at debug level.
func DevelopmentOptions() Options {
	return Options{Development: true, Level: -1}
}

// NewLogger builds a logr.Logger backed by zap according to opts.
func NewLogger(opts Options) logr.Logger {
	level := zapcore.Level(opts.Level)

	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	zl, err := cfg.Build()
	if err != nil {
		// Logging construction failures have no safe logging target of
		// their own; fall back to a discard logger rather than panic at
		// process start.
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}

// Sync flushes any buffered log entries. Call it before process exit.
func Sync(l logr.Logger) {
	if sink, ok := l.GetSink().(zapr.Underlier); ok {
		_ = sink.GetUnderlying().Sync()
	}
}

// Fields is a chainable builder for structured log attributes shared
// across components. Each method returns the receiver so calls compose,
// e.g. NewFields().Component("ingestusecase").WorkflowID(id).
type Fields map[string]interface{}

// NewFields returns an empty Fields set.
func NewFields() Fields {
	return Fields{}
}

func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

func (f Fields) Operation(name string) Fields {
	f["operation"] = name
	return f
}

func (f Fields) WorkflowID(id string) Fields {
	if id != "" {
		f["workflow_id"] = id
	}
	return f
}

func (f Fields) ScanID(id string) Fields {
	if id != "" {
		f["scan_id"] = id
	}
	return f
}

func (f Fields) DatasetVersionID(id string) Fields {
	if id != "" {
		f["dataset_version_id"] = id
	}
	return f
}

func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

func (f Fields) Custom(key string, value interface{}) Fields {
	f[key] = value
	return f
}

// KeysAndValues flattens Fields into the variadic key/value list
// logr.Logger.Info/Error expect.
func (f Fields) KeysAndValues() []interface{} {
	kv := make([]interface{}, 0, len(f)*2)
	for k, v := range f {
		kv = append(kv, k, v)
	}
	return kv
}
