// Package main provides the entry point for the taskflow CLI.
package main

import "yqhp/taskflow/cmd"

func main() {
	cmd.Execute()
}
