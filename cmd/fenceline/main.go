// Package main provides the fenceline CLI for empirical sandbox boundary
// characterization.
package main

func main() {
	Execute()
}
