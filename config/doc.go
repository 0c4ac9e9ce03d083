// Package config loads declarative resilience pipeline definitions from
// YAML and compiles them into pipeline options.
//
// A config file names pipelines and the strategies each one carries. An
// optional defaults block applies to every pipeline that does not override
// it:
//
//	defaults:
//	  timeout:
//	    duration: 5s
//	pipelines:
//	  payments:
//	    retry:
//	      max_attempts: 3
//	      base_delay: 100ms
//	    circuit_breaker:
//	      failure_ratio: 0.5
//	      break_duration: 10s
package config
