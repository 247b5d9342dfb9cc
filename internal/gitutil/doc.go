// Package gitutil runs the git command line for the stores and upstream
// sources that keep their data in a working copy.
package gitutil
