// ragchat - terminal client for the RAG chat backend
package main

import (
	"fmt"
	"os"
)

func main() {
	root, cleanup := newRootCmd()
	err := root.Execute()
	cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
