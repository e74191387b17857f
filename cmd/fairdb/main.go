// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

// Command fairdb is the benchmark driver: it loads the tenant spec and
// properties, constructs the data plane and the fair-share scheduler, runs
// the load and transaction phases, and joins everything on shutdown.
//
// Usage:
//
//	fairdb -load -run -db memdb -P conf/memdb.properties -p config=clients.yaml -s
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"fairdb/internal/config"
)

// stringList collects repeatable flags in order.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

// parseArgs builds the property set from the command line: property files
// first in order, then inline overrides, then the dedicated flags.
func parseArgs(args []string) (*config.Properties, error) {
	fs := flag.NewFlagSet("fairdb", flag.ContinueOnError)
	var (
		propFiles stringList
		inline    stringList
		doLoad    = fs.Bool("load", false, "run the load phase")
		doRun     = fs.Bool("run", false, "run the transaction phase")
		doTxn     = fs.Bool("t", false, "alias for -run")
		dbName    = fs.String("db", "memdb", "engine backend name")
		threads   = fs.Int("threads", 0, "worker pool size (overrides tpool_threads)")
		status    = fs.Bool("s", false, "print periodic status lines")
	)
	fs.Var(&propFiles, "P", "property file (repeatable, processed in order)")
	fs.Var(&inline, "p", "inline property override key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	props := config.NewProperties()
	for _, path := range propFiles {
		if err := props.LoadFile(path); err != nil {
			return nil, err
		}
	}
	for _, kv := range inline {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("-p wants key=value, have %q", kv)
		}
		props.Set(key, value)
	}

	if *doLoad {
		props.Set("doload", "true")
	}
	if *doRun || *doTxn {
		props.Set("dotransaction", "true")
	}
	props.Set("dbname", *dbName)
	if *threads > 0 {
		props.Set("tpool_threads", fmt.Sprint(*threads))
	}
	if *status {
		props.Set("status", "true")
	}
	return props, nil
}
