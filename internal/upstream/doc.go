// Package upstream reads the current build number of each ecosystem from the
// upstream project's BUILD_NUMBER files.
//
// A build-number file holds the revision on its first line; anything after
// it (upstream files carry a change note) is ignored.
package upstream
