// Package main is the entry point for dynwatch.
package main

func main() {
	Execute()
}
