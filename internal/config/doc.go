// Package config holds the service configuration of edgevisor.
//
// [Tree] is the in-memory hierarchical ConfigSource. Files are decoded
// into it by [LoadFile] (YAML or TOML, chosen by extension) and kept in
// sync by [Watcher]. Every replacement is diffed leaf by leaf, so
// subscribers see precise created, updated and removed changes.
//
// [Spec] is the immutable per-service snapshot a lifecycle transition
// works from. It is parsed from the "services/<name>" subtree:
//
//	services:
//	  broker:
//	    version: 1.2.0
//	    lifecycle:
//	      run: ./broker --port 1883
//	  telemetry:
//	    dependencies: ["broker:HARD", "metrics:SOFT"]
//	    lifecycle:
//	      install: { script: ./install.sh, timeout: 300 }
//	      startup: ./start.sh
//	      shutdown: ./stop.sh
//	    setenv:
//	      LOG_LEVEL: debug
//	    runWith:
//	      systemResourceLimits: { cpus: 0.5, memory: 65536 }
package config
