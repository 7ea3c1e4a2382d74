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

// Package configutil provides an interface for loading and validating
// configuration data from YAML files.
//
// Other YAML files can be included via the `extends` keyword. Configuration
// from the base file is deep-merged with the extending file, and the chain
// is validated exactly once, after all files have been merged.
package configutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v2"
)

// ErrCycleRef is returned when there are circular dependencies detected in
// configuration files extending each other.
var ErrCycleRef = errors.New("cyclic reference in configuration extends detected")

// Extends define a configuration file with a link to another file.
type Extends struct {
	Extends string `yaml:"extends"`
}

// ValidationError is returned when the configuration file has invalid values.
type ValidationError struct {
	errorMap validator.ErrorMap
}

// ErrForField returns the validation error for the given field.
func (e ValidationError) ErrForField(name string) validator.ErrorArray {
	if errs, ok := e.errorMap[name]; ok {
		return errs
	}
	for field, errs := range e.errorMap {
		if strings.HasSuffix(field, "."+name) {
			return errs
		}
	}
	return nil
}

func (e ValidationError) Error() string {
	var w strings.Builder
	fmt.Fprintf(&w, "validation failed")
	for f, err := range e.errorMap {
		fmt.Fprintf(&w, "   %s: %v\n", f, err)
	}
	return w.String()
}

// readExtend reads the `extends` field of the file, if any.
func readExtend(configFile string) (string, error) {
	var cfg Extends

	b, err := os.ReadFile(configFile)
	if err != nil {
		return "", fmt.Errorf("read config: %s", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return "", fmt.Errorf("unmarshal %s: %s", configFile, err)
	}
	return cfg.Extends, nil
}

// resolveExtends returns the list of config files to be loaded in order,
// with the root base file first. A relative extends path is resolved
// against the directory of the file naming it.
func resolveExtends(configFile string, readExtendFn func(string) (string, error)) ([]string, error) {
	filenames := []string{configFile}
	seen := map[string]struct{}{configFile: {}}
	for {
		base, err := readExtendFn(configFile)
		if err != nil {
			return nil, err
		}
		if base == "" {
			break
		}
		if !filepath.IsAbs(base) {
			base = filepath.Join(filepath.Dir(configFile), base)
		}
		if _, ok := seen[base]; ok {
			return nil, ErrCycleRef
		}
		filenames = append([]string{base}, filenames...)
		seen[base] = struct{}{}
		configFile = base
	}
	return filenames, nil
}

// Load loads configuration based on config file at path, resolving any
// extends chains, and validates the merged result.
func Load(path string, config interface{}) error {
	filenames, err := resolveExtends(path, readExtend)
	if err != nil {
		return err
	}
	return loadFiles(config, filenames)
}

// loadFiles loads a list of files, deep-merging values in order, and
// validates the final result.
func loadFiles(config interface{}, fnames []string) error {
	for _, fname := range fnames {
		b, err := os.ReadFile(fname)
		if err != nil {
			return fmt.Errorf("read config: %s", err)
		}
		if err := yaml.Unmarshal(b, config); err != nil {
			return fmt.Errorf("unmarshal %s: %s", fname, err)
		}
	}
	if err := validator.Validate(config); err != nil {
		if errMap, ok := err.(validator.ErrorMap); ok {
			return ValidationError{errMap}
		}
		return fmt.Errorf("validate: %s", err)
	}
	return nil
}
