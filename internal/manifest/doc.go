// Package manifest turns a YAML job manifest into scheduler-ready jobs.
//
// A manifest lists jobs by name. Each entry picks a built-in work kind, its
// arguments, and optional start time, timeout, tries and prerequisites:
//
//	timezone: Europe/Berlin
//	jobs:
//	  - name: fetch
//	    kind: http.get
//	    url: https://example.com
//	    tries: 5
//	  - name: prep
//	    kind: dir.create
//	    dir: out
//	    start_at: "cron:0 3 * * *"
//	    depends_on: [fetch]
//
// Names must be unique, prerequisites must exist and the dependency graph
// must be acyclic. Jobs are returned in file order.
package manifest
