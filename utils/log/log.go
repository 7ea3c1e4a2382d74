// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log wraps a global zap.SugaredLogger. By default, the global
// logger writes human-readable output to stderr at info level. Binaries
// should call ConfigureLogger early in main to install their configured
// logger.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	_mu     sync.Mutex
	_logger *zap.SugaredLogger
)

// Default returns the default logger configuration.
func Default() zap.Config {
	return zap.Config{
		Level:       zap.NewAtomicLevelAt(zap.InfoLevel),
		Sampling:    nil,
		Encoding:    "console",
		OutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "message",
			NameKey:        "logger",
			LevelKey:       "level",
			TimeKey:        "ts",
			CallerKey:      "caller",
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
	}
}

// ConfigureLogger builds a logger from config and installs it as the
// global logger. Returns the installed sugared logger.
func ConfigureLogger(config zap.Config) *zap.SugaredLogger {
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	SetGlobalLogger(logger.Sugar())
	return GetGlobalLogger()
}

// SetGlobalLogger sets the global logger.
func SetGlobalLogger(logger *zap.SugaredLogger) {
	_mu.Lock()
	defer _mu.Unlock()
	_logger = logger
}

// GetGlobalLogger returns the global logger, building the default logger
// on first use if none was configured.
func GetGlobalLogger() *zap.SugaredLogger {
	_mu.Lock()
	defer _mu.Unlock()
	if _logger == nil {
		logger, err := Default().Build()
		if err != nil {
			panic(err)
		}
		_logger = logger.Sugar()
	}
	return _logger
}

// Debug uses fmt.Sprint to construct and log a message.
func Debug(args ...interface{}) { GetGlobalLogger().Debug(args...) }

// Info uses fmt.Sprint to construct and log a message.
func Info(args ...interface{}) { GetGlobalLogger().Info(args...) }

// Warn uses fmt.Sprint to construct and log a message.
func Warn(args ...interface{}) { GetGlobalLogger().Warn(args...) }

// Error uses fmt.Sprint to construct and log a message.
func Error(args ...interface{}) { GetGlobalLogger().Error(args...) }

// Fatal uses fmt.Sprint to construct and log a message, then calls os.Exit.
func Fatal(args ...interface{}) { GetGlobalLogger().Fatal(args...) }

// Debugf uses fmt.Sprintf to log a templated message.
func Debugf(template string, args ...interface{}) { GetGlobalLogger().Debugf(template, args...) }

// Infof uses fmt.Sprintf to log a templated message.
func Infof(template string, args ...interface{}) { GetGlobalLogger().Infof(template, args...) }

// Warnf uses fmt.Sprintf to log a templated message.
func Warnf(template string, args ...interface{}) { GetGlobalLogger().Warnf(template, args...) }

// Errorf uses fmt.Sprintf to log a templated message.
func Errorf(template string, args ...interface{}) { GetGlobalLogger().Errorf(template, args...) }

// Fatalf uses fmt.Sprintf to log a templated message, then calls os.Exit.
func Fatalf(template string, args ...interface{}) { GetGlobalLogger().Fatalf(template, args...) }

// With adds a variadic number of fields to the logging context.
func With(args ...interface{}) *zap.SugaredLogger { return GetGlobalLogger().With(args...) }
